package hierarchy

import "errors"

var (
	// ErrNodeNotFound は対象ノードが存在しない場合に返却されます。
	ErrNodeNotFound = errors.New("hierarchy: node not found")
	// ErrParentNotFound は指定された上長ノードが存在しない場合に返却されます。
	ErrParentNotFound = errors.New("hierarchy: parent not found")
	// ErrParentTerminated は退職済みノードを上長に指定した場合に返却されます。
	ErrParentTerminated = errors.New("hierarchy: parent is terminated")
	// ErrCycleRejected は配下ノードを上長に指定した場合に返却されます。
	ErrCycleRejected = errors.New("hierarchy: reassignment would create a cycle")
	// ErrSelfReference は自分自身を上長に指定した場合に返却されます。
	ErrSelfReference = errors.New("hierarchy: node cannot report to itself")
	// ErrValidationFailed は入力値の検証に失敗した場合に返却されます。
	ErrValidationFailed = errors.New("hierarchy: validation failed")
	// ErrInvalidID は ID が空の場合に返却されます。
	ErrInvalidID = errors.New("hierarchy: invalid id")
	// ErrInvalidStatus はステータスが不正な場合に返却されます。
	ErrInvalidStatus = errors.New("hierarchy: invalid status")
	// ErrUnauthorized は変更権限のない呼び出し元が更新しようとした場合に返却されます。
	ErrUnauthorized = errors.New("hierarchy: mutate capability required")
	// ErrConflict は社員 ID 管理側の一意制約に違反した場合に返却されます。
	ErrConflict = errors.New("hierarchy: conflict")
	// ErrCorruptHierarchy は保存済みデータに循環が見つかった場合の内部エラーです。
	ErrCorruptHierarchy = errors.New("hierarchy: corrupt hierarchy")
)
