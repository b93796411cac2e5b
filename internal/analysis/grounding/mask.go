package grounding

import (
	"regexp"
	"strings"

	"analyst-workers/internal/analysis/tabular"
)

// Identifier formats that must never reach a synthesized answer in full.
// Each mask keeps the leading segment so the value stays recognizable while
// the holder-specific digits are hidden.
var (
	bizRegistrationPattern = regexp.MustCompile(`\d{3}-\d{2}-\d{5}`)
	residentNumberPattern  = regexp.MustCompile(`\d{6}-\d{7}`)
	phoneNumberPattern     = regexp.MustCompile(`\d{2,3}-\d{3,4}-\d{4}`)
)

// DefaultSensitiveColumns are the column-name fragments that mark a column
// as carrying personal or registration data.
var DefaultSensitiveColumns = []string{
	"사업자", "주민", "등록번호", "전화", "핸드폰", "이메일",
	"business", "resident", "phone", "mobile", "email",
}

// Masker hides business registration numbers, resident registration
// numbers, and phone numbers in values drawn from sensitive columns.
type Masker struct {
	enabled bool
	columns []string
}

// NewMasker builds a Masker. Column fragments default to
// DefaultSensitiveColumns when none are given.
func NewMasker(enabled bool, columns []string) *Masker {
	if len(columns) == 0 {
		columns = DefaultSensitiveColumns
	}
	lowered := make([]string, len(columns))
	for i, c := range columns {
		lowered[i] = strings.ToLower(c)
	}
	return &Masker{enabled: enabled, columns: lowered}
}

// SensitiveColumn reports whether the column name marks personal data.
func (m *Masker) SensitiveColumn(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range m.columns {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// MaskValue replaces every registration, resident, and phone number in s
// with its masked form. Text without those formats passes through unchanged.
func (m *Masker) MaskValue(s string) string {
	if !m.enabled {
		return s
	}
	s = bizRegistrationPattern.ReplaceAllStringFunc(s, maskBizRegistration)
	s = residentNumberPattern.ReplaceAllStringFunc(s, maskResidentNumber)
	s = phoneNumberPattern.ReplaceAllStringFunc(s, maskPhoneNumber)
	return s
}

// MaskRow returns a copy of row with every sensitive field rendered as a
// masked string. Other fields keep their original values.
func (m *Masker) MaskRow(row map[string]interface{}, fields []string) map[string]interface{} {
	out := tabular.CopyRow(row)
	if !m.enabled {
		return out
	}
	for _, field := range fields {
		if !m.SensitiveColumn(field) {
			continue
		}
		v, ok := out[field]
		if !ok || v == nil {
			continue
		}
		out[field] = m.MaskValue(tabular.CellString(v))
	}
	return out
}

// 123-45-67890 becomes 123-**-***90.
func maskBizRegistration(s string) string {
	parts := strings.Split(s, "-")
	return parts[0] + "-**-***" + parts[2][3:]
}

// 900101-1234567 becomes 900101-*******.
func maskResidentNumber(s string) string {
	parts := strings.Split(s, "-")
	return parts[0] + "-*******"
}

// 010-1234-5678 becomes 010-****-5678.
func maskPhoneNumber(s string) string {
	parts := strings.Split(s, "-")
	return parts[0] + "-" + strings.Repeat("*", len(parts[1])) + "-" + parts[2]
}
