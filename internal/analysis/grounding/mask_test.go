package grounding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ==========================
// MaskValue
// ==========================

func TestMasker_MaskValue_Formats(t *testing.T) {
	m := NewMasker(true, nil)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "business registration number",
			input: "123-45-67890",
			want:  "123-**-***90",
		},
		{
			name:  "resident registration number",
			input: "900101-1234567",
			want:  "900101-*******",
		},
		{
			name:  "mobile phone",
			input: "010-1234-5678",
			want:  "010-****-5678",
		},
		{
			name:  "area phone with three-digit middle",
			input: "02-123-4567",
			want:  "02-***-4567",
		},
		{
			name:  "number embedded in text",
			input: "연락처: 010-1234-5678 입니다",
			want:  "연락처: 010-****-5678 입니다",
		},
		{
			name:  "multiple formats in one value",
			input: "010-1234-5678 / 123-45-67890",
			want:  "010-****-5678 / 123-**-***90",
		},
		{
			name:  "plain text untouched",
			input: "한국케미칼상사",
			want:  "한국케미칼상사",
		},
		{
			name:  "date stays intact",
			input: "2024-01-15",
			want:  "2024-01-15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MaskValue(tt.input))
		})
	}
}

func TestMasker_DisabledPassesThrough(t *testing.T) {
	m := NewMasker(false, nil)

	assert.Equal(t, "123-45-67890", m.MaskValue("123-45-67890"))

	row := map[string]interface{}{"전화번호": "010-1234-5678"}
	masked := m.MaskRow(row, []string{"전화번호"})
	assert.Equal(t, "010-1234-5678", masked["전화번호"])
}

// ==========================
// Sensitive Column Detection
// ==========================

func TestMasker_SensitiveColumn(t *testing.T) {
	m := NewMasker(true, nil)

	assert.True(t, m.SensitiveColumn("사업자등록번호"))
	assert.True(t, m.SensitiveColumn("주민등록번호"))
	assert.True(t, m.SensitiveColumn("대표전화"))
	assert.True(t, m.SensitiveColumn("담당자 핸드폰"))
	assert.True(t, m.SensitiveColumn("이메일"))
	assert.True(t, m.SensitiveColumn("Email Address"))
	assert.True(t, m.SensitiveColumn("Mobile Phone"))

	assert.False(t, m.SensitiveColumn("거래처명"))
	assert.False(t, m.SensitiveColumn("합계"))
	assert.False(t, m.SensitiveColumn("매출일"))
}

func TestMasker_CustomColumnFragments(t *testing.T) {
	m := NewMasker(true, []string{"contact"})

	assert.True(t, m.SensitiveColumn("Contact Number"))
	assert.False(t, m.SensitiveColumn("전화번호"))
}

// ==========================
// MaskRow
// ==========================

func TestMasker_MaskRow(t *testing.T) {
	m := NewMasker(true, nil)
	row := map[string]interface{}{
		"거래처명":    "한국케미칼상사",
		"사업자등록번호": "123-45-67890",
		"전화번호":    "010-1234-5678",
		"합계":      float64(1000),
	}

	masked := m.MaskRow(row, []string{"거래처명", "사업자등록번호", "전화번호", "합계"})

	assert.Equal(t, "한국케미칼상사", masked["거래처명"])
	assert.Equal(t, "123-**-***90", masked["사업자등록번호"])
	assert.Equal(t, "010-****-5678", masked["전화번호"])
	assert.Equal(t, float64(1000), masked["합계"])

	// The source row keeps its raw values.
	assert.Equal(t, "123-45-67890", row["사업자등록번호"])
	assert.Equal(t, "010-1234-5678", row["전화번호"])
}

func TestMasker_MaskRow_NilSensitiveFieldStaysNil(t *testing.T) {
	m := NewMasker(true, nil)
	row := map[string]interface{}{"전화번호": nil}

	masked := m.MaskRow(row, []string{"전화번호"})

	assert.Nil(t, masked["전화번호"])
}
