package model

import "time"

// CredentialKey is the fixed key of the single delegated credential row.
const CredentialKey = "singleton"

// CredentialSet is the delegated OAuth2 token set the gateway acts with.
// Exactly one exists system-wide; it is only ever overwritten.
type CredentialSet struct {
	AccessToken  string    `json:"access_token" dynamodbav:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty" dynamodbav:"refresh_token"`
	Scope        string    `json:"scope" dynamodbav:"scope"`
	TokenType    string    `json:"token_type" dynamodbav:"token_type"`
	Expiry       time.Time `json:"expiry" dynamodbav:"expiry"`
	AccountEmail string    `json:"account_email,omitempty" dynamodbav:"account_email"`
	UpdatedAt    time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// Expired reports whether the access token is past its expiry at now.
// A zero expiry never expires.
func (c *CredentialSet) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !c.Expiry.After(now)
}

// Renewable reports whether the set carries a refresh token.
func (c *CredentialSet) Renewable() bool {
	return c.RefreshToken != ""
}

// ObjectRef is a remote file or folder as seen through the store's API.
type ObjectRef struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	MIMEType    string   `json:"mimeType,omitempty"`
	Parents     []string `json:"parents,omitempty"`
	WebViewLink string   `json:"viewLink,omitempty"`
	IconLink    string   `json:"iconLink,omitempty"`
	Size        int64    `json:"size,omitempty"`
}

// HasParent reports whether id is one of the object's parents.
func (o *ObjectRef) HasParent(id string) bool {
	for _, p := range o.Parents {
		if p == id {
			return true
		}
	}
	return false
}

// ExportItem is one entry of an archive job: a remote reference (a bare id
// or a share link) and the path it should take inside the archive.
type ExportItem struct {
	Ref      string `json:"ref"`
	DestPath string `json:"name"`
}

// FolderPathSpec carries the folder hierarchy parameters of a request.
// AcademicYear..Category are the multi-segment form; LegacyTerm is the
// older single-segment form.
type FolderPathSpec struct {
	AcademicYear string `json:"academicYear,omitempty"`
	Term         string `json:"term,omitempty"`
	OrgUnit      string `json:"orgUnit,omitempty"`
	Section      string `json:"section,omitempty"`
	Category     string `json:"category,omitempty"`
	LegacyTerm   string `json:"semester,omitempty"`
}

// Segments returns the ordered folder levels. The legacy segment only takes
// the top level when no academic year was given.
func (s FolderPathSpec) Segments() []string {
	top := s.AcademicYear
	if top == "" {
		top = s.LegacyTerm
	}
	return []string{top, s.Term, s.OrgUnit, s.Section, s.Category}
}
