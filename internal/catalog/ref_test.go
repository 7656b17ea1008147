package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRef(t *testing.T) {
	const id = "1AbCdEfGhIjKlMnOp_qr-ST"
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"bare id", id, id, true},
		{"file view link", "https://drive.google.com/file/d/" + id + "/view?usp=sharing", id, true},
		{"document link", "https://docs.google.com/document/d/" + id + "/edit", id, true},
		{"open link", "https://drive.google.com/open?id=" + id, id, true},
		{"uc download link", "https://drive.google.com/uc?export=download&id=" + id, id, true},
		{"folder link", "https://drive.google.com/drive/folders/" + id, id, true},
		{"surrounding space", "  " + id + " ", id, true},
		{"empty", "", "", false},
		{"not a link", "see attached", "", false},
		{"foreign link without id", "https://example.com/report.pdf", "", false},
		{"short id", "abc", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRef(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
