package domain

// Actor is the identity snapshot supplied by the authentication layer for every
// operation. The core trusts it and performs no authorization of its own.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type Case struct {
	ID                 string   `json:"id"`
	ClientName         string   `json:"client_name"`
	ClientEmail        string   `json:"client_email,omitempty"`
	ClientPhone        string   `json:"client_phone,omitempty"`
	Status             string   `json:"status"`
	IsProject          bool     `json:"is_project"`
	AssignedSales      *string  `json:"assigned_sales,omitempty"`
	AssignedEngineerID *string  `json:"assigned_engineer_id,omitempty"`
	TotalBudget        *float64 `json:"total_budget,omitempty"`
	SourceEnquiryID    *string  `json:"source_enquiry_id,omitempty"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
	UpdatedAt          string   `json:"updated_at" format:"date-time"`
}

// ActivityRecord is one immutable audit-log entry for a Case. UserName is a
// snapshot of the actor at write time, not a live reference.
type ActivityRecord struct {
	ID        string         `json:"id"`
	CaseID    string         `json:"case_id"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type" enum:"status_change,note,file_upload,reminder,task_created,other"`
	Action    string         `json:"action"`
	UserID    string         `json:"user_id"`
	UserName  string         `json:"user_name,omitempty"`
	Timestamp string         `json:"timestamp" format:"date-time"`
	Notes     string         `json:"notes,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Task struct {
	ID         string  `json:"id"`
	CaseID     string  `json:"case_id"`
	Type       string  `json:"type" enum:"SITE_VISIT,DRAWING_TASK,BOQ,QUOTATION_TASK,PROCUREMENT_AUDIT,EXECUTION_TASK,SALES_CONTACT,REMINDER"`
	Title      string  `json:"title"`
	AssignedTo string  `json:"assigned_to"`
	AssignedBy string  `json:"assigned_by"`
	Status     string  `json:"status" enum:"PENDING,ASSIGNED,COMPLETED,CANCELLED"`
	Priority   *int    `json:"priority,omitempty"`
	Deadline   *string `json:"deadline,omitempty" format:"date-time"`
	Notes      string  `json:"notes,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

type Enquiry struct {
	ID              string   `json:"id"`
	ClientName      string   `json:"client_name"`
	ClientEmail     string   `json:"client_email,omitempty"`
	ClientPhone     string   `json:"client_phone,omitempty"`
	Budget          string   `json:"budget,omitempty"`
	Timeline        string   `json:"timeline,omitempty"`
	Style           string   `json:"style,omitempty"`
	Status          string   `json:"status" enum:"NEW,ASSIGNED,CONVERTED_TO_LEAD"`
	ViewedBy        []string `json:"viewed_by,omitempty"`
	ConvertedCaseID *string  `json:"converted_case_id,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
}

type RfqItem struct {
	ItemID      string  `json:"item_id"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

type Rfq struct {
	ID              string    `json:"id"`
	CaseID          string    `json:"case_id"`
	Items           []RfqItem `json:"items"`
	VendorIDs       []string  `json:"vendor_ids"`
	Status          string    `json:"status" enum:"OPEN,CLOSED"`
	BiddingDeadline string    `json:"bidding_deadline" format:"date-time"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       string    `json:"created_at" format:"date-time"`
}

type RfqInvite struct {
	ID       string `json:"id"`
	RfqID    string `json:"rfq_id"`
	VendorID string `json:"vendor_id"`
	SentAt   string `json:"sent_at" format:"date-time"`
}

// Attachment is the stored record of an uploaded file: URL plus metadata only,
// never the bytes themselves.
type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Activity record types.
const (
	ActivityStatusChange = "status_change"
	ActivityNote         = "note"
	ActivityFileUpload   = "file_upload"
	ActivityReminder     = "reminder"
	ActivityTaskCreated  = "task_created"
	ActivityOther        = "other"
)

// Task types. A task's type is derived once from its free-text title and drives
// the transition policy; it has no further update path back to the case.
const (
	TaskSiteVisit        = "SITE_VISIT"
	TaskDrawing          = "DRAWING_TASK"
	TaskBOQ              = "BOQ"
	TaskQuotation        = "QUOTATION_TASK"
	TaskProcurementAudit = "PROCUREMENT_AUDIT"
	TaskExecution        = "EXECUTION_TASK"
	TaskSalesContact     = "SALES_CONTACT"
	TaskReminder         = "REMINDER"
)

// Task statuses.
const (
	TaskStatusPending   = "PENDING"
	TaskStatusAssigned  = "ASSIGNED"
	TaskStatusCompleted = "COMPLETED"
	TaskStatusCancelled = "CANCELLED"
)

// Enquiry statuses. CONVERTED_TO_LEAD is terminal; enquiries are never deleted.
const (
	EnquiryNew       = "NEW"
	EnquiryAssigned  = "ASSIGNED"
	EnquiryConverted = "CONVERTED_TO_LEAD"
)

// RFQ statuses. Closing at the bidding deadline is a convention, not enforced.
const (
	RfqOpen   = "OPEN"
	RfqClosed = "CLOSED"
)
