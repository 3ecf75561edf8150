package server

import (
	"caseline/internal/domain"
)

// Request payloads

type CreateEnquiryRequest struct {
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email,omitempty"`
	ClientPhone string `json:"client_phone,omitempty"`
	Budget      string `json:"budget,omitempty"`
	Timeline    string `json:"timeline,omitempty"`
	Style       string `json:"style,omitempty"`
}

type CreateCaseRequest struct {
	ClientName    string   `json:"client_name"`
	ClientEmail   string   `json:"client_email,omitempty"`
	ClientPhone   string   `json:"client_phone,omitempty"`
	TotalBudget   *float64 `json:"total_budget,omitempty"`
	AssignedSales string   `json:"assigned_sales,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type ConvertEnquiryRequest struct {
	AssignedSales string   `json:"assigned_sales,omitempty"`
	TotalBudget   *float64 `json:"total_budget,omitempty"`
}

type AssignTaskRequest struct {
	Title      string `json:"title"`
	Type       string `json:"type,omitempty"`
	AssignedTo string `json:"assigned_to"`
	Priority   *int   `json:"priority,omitempty"`
	Deadline   string `json:"deadline,omitempty" format:"date-time"`
	Notes      string `json:"notes,omitempty"`
}

type AddNoteRequest struct {
	Text        string              `json:"text,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

type OpenRfqRequest struct {
	Items           []domain.RfqItem `json:"items"`
	VendorIDs       []string         `json:"vendor_ids"`
	BiddingDeadline string           `json:"bidding_deadline" format:"date-time"`
}

// Response payloads reuse the domain structs; their json tags are the wire
// contract already.

type paginatedCases struct {
	Items []domain.Case `json:"items"`
}

type paginatedTasks struct {
	Items []domain.Task `json:"items"`
}

type paginatedEnquiries struct {
	Items []domain.Enquiry `json:"items"`
}

type paginatedActivity struct {
	Items []domain.ActivityRecord `json:"items"`
}

type paginatedRfqs struct {
	Items []domain.Rfq `json:"items"`
}

type rfqDetail struct {
	Rfq     domain.Rfq         `json:"rfq"`
	Invites []domain.RfqInvite `json:"invites"`
}

type pipelineSummary struct {
	Counts map[string]int `json:"counts"`
}

type noteResponse struct {
	RecordID string `json:"record_id"`
}
