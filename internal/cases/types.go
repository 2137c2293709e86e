package cases

import "time"

// OrgKind distinguishes the headquarters organization from branch clinics.
type OrgKind string

const (
	OrgHQ     OrgKind = "HQ"
	OrgBranch OrgKind = "BRANCH"
)

// Organization is the tenancy root; every protected entity is owned by
// exactly one organization.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      OrgKind   `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// CaseStatus is the case lifecycle state machine.
type CaseStatus string

const (
	CaseDraft      CaseStatus = "DRAFT"
	CaseOpen       CaseStatus = "OPEN"
	CaseInProgress CaseStatus = "IN_PROGRESS"
	CaseReview     CaseStatus = "REVIEW"
	CaseCompleted  CaseStatus = "COMPLETED"
	CaseCancelled  CaseStatus = "CANCELLED"
)

// Terminal reports whether clinical fields of a case in this status are
// frozen for non-admin actors.
func (s CaseStatus) Terminal() bool {
	return s == CaseCompleted || s == CaseCancelled
}

// Priority is carried on the case and is never treated as PHI.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Patient holds the identifying fields of the case subject. These are the
// fields removed by de-identified projections.
type Patient struct {
	MRN         string `json:"mrn"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
}

// Case is a clinical case owned by one organization. It owns an ordered
// sequence of treatment plan versions and at most one share policy.
type Case struct {
	ID        string     `json:"id"`
	Number    string     `json:"number"`
	OwningOrg string     `json:"owning_org"`
	Status    CaseStatus `json:"status"`
	Priority  Priority   `json:"priority"`
	Title     string     `json:"title"`
	Diagnosis string     `json:"diagnosis"`
	Patient   Patient    `json:"patient"`
	Secret    bool       `json:"secret"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// VersionStatus is the lifecycle of a single treatment plan version.
type VersionStatus string

const (
	VersionDraft    VersionStatus = "DRAFT"
	VersionApproved VersionStatus = "APPROVED"
	VersionArchived VersionStatus = "ARCHIVED"
)

// PlanContent is the structured body of a treatment plan version. Diffs are
// computed key by key.
type PlanContent map[string]any

// PlanVersion is one entry of a case's append-only plan history. Version
// numbers form a gapless sequence starting at 1 and at most one version per
// case is in DRAFT state at any time.
type PlanVersion struct {
	CaseID     string        `json:"case_id"`
	Version    int           `json:"version"`
	Author     string        `json:"author"`
	Content    PlanContent   `json:"content"`
	Status     VersionStatus `json:"status"`
	Token      string        `json:"token"`
	ApprovedBy string        `json:"approved_by,omitempty"`
	ApprovedAt *time.Time    `json:"approved_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// VersionRef is the caller-facing handle for a plan version. Token is the
// optimistic concurrency marker a client must present on the next update.
type VersionRef struct {
	CaseID  string        `json:"case_id"`
	Version int           `json:"version"`
	Status  VersionStatus `json:"status"`
	Token   string        `json:"token"`
}

// Ref returns the caller-facing handle for v.
func (v PlanVersion) Ref() VersionRef {
	return VersionRef{CaseID: v.CaseID, Version: v.Version, Status: v.Status, Token: v.Token}
}

// ShareScope controls cross-organization visibility of a case.
type ShareScope string

const (
	// ShareBranch keeps the case inside the owning organization.
	ShareBranch ShareScope = "BRANCH"
	// ShareCrossBranch exposes the full clinical view to other organizations.
	ShareCrossBranch ShareScope = "CROSS_BRANCH"
	// ShareDeidentified exposes a redacted view with patient identity removed.
	ShareDeidentified ShareScope = "DEIDENTIFIED"
)

// Valid reports whether s is a known share scope.
func (s ShareScope) Valid() bool {
	switch s {
	case ShareBranch, ShareCrossBranch, ShareDeidentified:
		return true
	}
	return false
}

// SharePolicy is the per-case sharing rule. A case has zero or one policy;
// absence means no cross-organization visibility at all.
type SharePolicy struct {
	CaseID string     `json:"case_id"`
	Scope  ShareScope `json:"scope"`
	SetBy  string     `json:"set_by"`
	SetAt  time.Time  `json:"set_at"`
}

// CaseView is the projection of a case returned to a caller after scope and
// share-policy filtering. Redacted marks a de-identified projection.
type CaseView struct {
	ID        string     `json:"id"`
	Number    string     `json:"number"`
	OwningOrg string     `json:"owning_org"`
	Status    CaseStatus `json:"status"`
	Priority  Priority   `json:"priority"`
	Title     string     `json:"title"`
	Diagnosis string     `json:"diagnosis"`
	Patient   Patient    `json:"patient"`
	Redacted  bool       `json:"redacted"`
}
