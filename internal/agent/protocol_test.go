package agent

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUploadID(t *testing.T) {
	tests := []struct {
		line string
		want int64
	}{
		{"7", 7},
		{"42\r", 42},
		{"  13", 13},
		{"+5", 5},
		{"-3", -3},
		{"0", 0},
		{"12abc", 12},
		{"abc", 0},
		{"", 0},
		{"+", 0},
		{"99999999999999999999", 0},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseUploadID(tt.line))
		})
	}
}

func TestIsControlLine(t *testing.T) {
	assert.True(t, isControlLine("END"))
	assert.True(t, isControlLine("CLOSE\r"))
	assert.False(t, isControlLine("end"))
	assert.False(t, isControlLine("ENDING"))
}

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	w := newLineWriter(&buf)
	w.Version("2.0.1")
	w.OK()
	w.Heart(12, true)
	w.Heart(12, false)
	w.Bye(1)
	assert.NoError(t, w.Err())
	assert.Equal(t, "VERSION: 2.0.1\nOK\nHEART: 12 1\nHEART: 12 0\nBYE 1\n", buf.String())
}
