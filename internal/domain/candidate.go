package domain

import "time"

// Gender values accepted on registration.
const (
	GenderMale   = "laki-laki"
	GenderFemale = "perempuan"
)

// Candidate is the aggregate for one registrant's submission and review state.
type Candidate struct {
	ID              string
	Name            string
	StudentID       string
	Semester        int
	GPA             float64
	Gender          string
	WhatsApp        string
	Email           string
	Experience      string
	VisionMission   string
	PhotoURL        string
	CertificateURLs []string
	Status          CandidateStatus
	AdminNote       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy so callers never share the certificate slice.
func (c Candidate) Clone() Candidate {
	out := c
	if c.CertificateURLs != nil {
		out.CertificateURLs = append([]string(nil), c.CertificateURLs...)
	}
	return out
}

// CandidateProfileUpdate carries the identity fields an admin may edit.
// The lifecycle fields are deliberately absent.
type CandidateProfileUpdate struct {
	Name            string
	StudentID       string
	Semester        int
	GPA             float64
	Gender          string
	WhatsApp        string
	Email           string
	Experience      string
	VisionMission   string
	PhotoURL        string
	CertificateURLs []string
}

// Apply copies the editable fields onto the candidate.
func (u CandidateProfileUpdate) Apply(c *Candidate) {
	c.Name = u.Name
	c.StudentID = u.StudentID
	c.Semester = u.Semester
	c.GPA = u.GPA
	c.Gender = u.Gender
	c.WhatsApp = u.WhatsApp
	c.Email = u.Email
	c.Experience = u.Experience
	c.VisionMission = u.VisionMission
	c.PhotoURL = u.PhotoURL
	c.CertificateURLs = append([]string(nil), u.CertificateURLs...)
}

// CandidateStats summarizes the registration pool for the dashboard.
type CandidateStats struct {
	Total      int
	AverageGPA float64
	ByStatus   map[CandidateStatus]int
}
