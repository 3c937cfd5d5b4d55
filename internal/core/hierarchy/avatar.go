package hierarchy

import (
	"net/url"
	"strings"
	"unicode"
)

// DefaultPlaceholderURL はアバター未設定時に使うイニシャル画像のエンドポイントです。
const DefaultPlaceholderURL = "https://ui-avatars.com/api/"

// AvatarResolver はキャンバスへ渡す前にアバターの URL を確定させます。
type AvatarResolver struct {
	BaseURL        string
	PlaceholderURL string
}

// Resolve は保存済みのアバターを表示用 URL に変換します。
//   - 空: 名前のイニシャルから決定的なプレースホルダー URL を生成
//   - 相対パス: BaseURL を基準に解決
//   - 絶対 URL: そのまま
func (r AvatarResolver) Resolve(name, avatar string) string {
	avatar = strings.TrimSpace(avatar)
	if avatar == "" {
		return r.placeholder(name)
	}

	ref, err := url.Parse(avatar)
	if err != nil || ref.IsAbs() || strings.TrimSpace(r.BaseURL) == "" {
		return avatar
	}

	base, err := url.Parse(strings.TrimSpace(r.BaseURL))
	if err != nil {
		return avatar
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref.Path = strings.TrimPrefix(ref.Path, "/")
	return base.ResolveReference(ref).String()
}

func (r AvatarResolver) placeholder(name string) string {
	endpoint := r.PlaceholderURL
	if endpoint == "" {
		endpoint = DefaultPlaceholderURL
	}
	q := url.Values{}
	q.Set("name", Initials(name))
	return endpoint + "?" + q.Encode()
}

// Initials は名前の最初と最後の語の頭文字を大文字で返します。名前が空なら "?" です。
func Initials(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})
	if len(words) == 0 {
		return "?"
	}

	first := []rune(words[0])[0]
	if len(words) == 1 {
		return string(unicode.ToUpper(first))
	}
	last := []rune(words[len(words)-1])[0]
	return string([]rune{unicode.ToUpper(first), unicode.ToUpper(last)})
}

func (r AvatarResolver) enrich(n *Node) *Node {
	if n == nil {
		return nil
	}
	n.Avatar = r.Resolve(n.Name, n.Avatar)
	return n
}
