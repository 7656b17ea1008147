package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFolderPathSpec_Segments(t *testing.T) {
	tests := []struct {
		name string
		spec FolderPathSpec
		want []string
	}{
		{
			name: "new style only",
			spec: FolderPathSpec{AcademicYear: "2025", Term: "Spring", OrgUnit: "Science", Section: "A", Category: "Exams"},
			want: []string{"2025", "Spring", "Science", "A", "Exams"},
		},
		{
			name: "legacy only takes the top level",
			spec: FolderPathSpec{LegacyTerm: "Fall 2019", Category: "Exams"},
			want: []string{"Fall 2019", "", "", "", "Exams"},
		},
		{
			name: "academic year wins over legacy",
			spec: FolderPathSpec{AcademicYear: "2025", LegacyTerm: "Fall 2019"},
			want: []string{"2025", "", "", "", ""},
		},
		{
			name: "legacy applies when only lower new-style levels are given",
			spec: FolderPathSpec{Term: "Spring", LegacyTerm: "Fall 2019"},
			want: []string{"Fall 2019", "Spring", "", "", ""},
		},
		{
			name: "empty",
			spec: FolderPathSpec{},
			want: []string{"", "", "", "", ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.Segments())
		})
	}
}

func TestCredentialSet_Expired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, (&CredentialSet{}).Expired(now), "zero expiry should never expire")
	assert.True(t, (&CredentialSet{Expiry: now.Add(-time.Second)}).Expired(now), "past expiry should be expired")
	assert.False(t, (&CredentialSet{Expiry: now.Add(time.Hour)}).Expired(now), "future expiry should not be expired")
	assert.False(t, (&CredentialSet{}).Renewable(), "set without refresh token is not renewable")
	assert.True(t, (&CredentialSet{RefreshToken: "r"}).Renewable())
}
