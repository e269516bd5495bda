package pipeline

import "fmt"

// SchemaError 数据集结构错误（缺列、单元格格式错误）
type SchemaError struct {
	Column string
	Row    int // 1-based data row, 0 for header level problems
	Value  string
	Reason string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Row > 0 && e.Column != "":
		return fmt.Sprintf("schema error: column %q row %d: %s (value %q)", e.Column, e.Row, e.Reason, e.Value)
	case e.Column != "":
		return fmt.Sprintf("schema error: column %q: %s", e.Column, e.Reason)
	default:
		return "schema error: " + e.Reason
	}
}

// Kind 错误类别
func (e *SchemaError) Kind() string {
	return "schema"
}
