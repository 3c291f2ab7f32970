// Package protocol provides the data structures shared by the console's
// components and its HTTP, MCP and CLI surfaces.
package protocol

import (
	"slices"
	"time"
)

// EntityType is the kind of record held by the entity store.
type EntityType string

const (
	EntityProject           EntityType = "project"
	EntityTask              EntityType = "task"
	EntityCustomer          EntityType = "customer"
	EntityOpportunity       EntityType = "opportunity"
	EntityDocument          EntityType = "document"
	EntityNote              EntityType = "note"
	EntityMetric            EntityType = "metric"
	EntityEvent             EntityType = "event"
	EntityTeamMember        EntityType = "team_member"
	EntityCompliance        EntityType = "compliance"
	EntityRnD               EntityType = "rnd"
	EntityFinance           EntityType = "finance"
	EntityMarketingCampaign EntityType = "marketing_campaign"
	EntityLead              EntityType = "lead"
	EntityDeal              EntityType = "deal"
	EntityInvestor          EntityType = "investor"
	EntityOKR               EntityType = "okr"
	EntityService           EntityType = "service"
	EntityStartup           EntityType = "startup"
)

// EntityTypes lists every known entity type in schema order.
var EntityTypes = []EntityType{
	EntityProject, EntityTask, EntityCustomer, EntityOpportunity, EntityDocument,
	EntityNote, EntityMetric, EntityEvent, EntityTeamMember, EntityCompliance,
	EntityRnD, EntityFinance, EntityMarketingCampaign, EntityLead, EntityDeal,
	EntityInvestor, EntityOKR, EntityService, EntityStartup,
}

func (t EntityType) Valid() bool { return slices.Contains(EntityTypes, t) }

// Status is the lifecycle state of an entity.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
	StatusBlocked   Status = "blocked"
	StatusPending   Status = "pending"
	StatusDraft     Status = "draft"
)

var Statuses = []Status{StatusActive, StatusCompleted, StatusArchived, StatusBlocked, StatusPending, StatusDraft}

func (s Status) Valid() bool { return slices.Contains(Statuses, s) }

// Open reports whether work on an entity in this state is still outstanding.
func (s Status) Open() bool {
	return s != StatusCompleted && s != StatusArchived
}

// Priority ranks entities.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent, PriorityCritical}

func (p Priority) Valid() bool { return slices.Contains(Priorities, p) }

// MetricCategory groups KPIs.
type MetricCategory string

const (
	MetricFinance    MetricCategory = "finance"
	MetricSales      MetricCategory = "sales"
	MetricMarketing  MetricCategory = "marketing"
	MetricTeam       MetricCategory = "team"
	MetricProduct    MetricCategory = "product"
	MetricOps        MetricCategory = "ops"
	MetricCustomer   MetricCategory = "customer"
	MetricInvestor   MetricCategory = "investor"
	MetricCompliance MetricCategory = "compliance"
)

var MetricCategories = []MetricCategory{
	MetricFinance, MetricSales, MetricMarketing, MetricTeam, MetricProduct,
	MetricOps, MetricCustomer, MetricInvestor, MetricCompliance,
}

func (c MetricCategory) Valid() bool { return slices.Contains(MetricCategories, c) }

// Entity is a record in the shared store. Fields every entity type carries
// are typed; anything type specific lives in Metadata.
type Entity struct {
	ID          string         `json:"id"`
	Type        EntityType     `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      Status         `json:"status"`
	Priority    Priority       `json:"priority"`
	Category    string         `json:"category,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ParentID    string         `json:"parent_id,omitempty"`
	Owner       string         `json:"owner,omitempty"`
	Source      string         `json:"source,omitempty"`
	SourceID    string         `json:"source_id,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// EntityPatch lists the mutable fields of an entity. Nil fields are left
// untouched by an update.
type EntityPatch struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Status      *Status        `json:"status,omitempty"`
	Priority    *Priority      `json:"priority,omitempty"`
	Category    *string        `json:"category,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ParentID    *string        `json:"parent_id,omitempty"`
	Owner       *string        `json:"owner,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p EntityPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.Category == nil && p.Tags == nil &&
		p.Metadata == nil && p.ParentID == nil && p.Owner == nil && p.DueDate == nil
}

// Metric is one recorded KPI value.
type Metric struct {
	ID         string         `json:"id"`
	Category   MetricCategory `json:"category"`
	Key        string         `json:"key"`
	Value      float64        `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	Period     string         `json:"period,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Channel identifies what triggered a mutation.
type Channel string

const (
	ChannelDirect Channel = "direct_command"
	ChannelChat   Channel = "chat_tool"
	ChannelMCP    Channel = "mcp_tool"
)

// Activity is an audit trail entry for a mutation.
type Activity struct {
	ID        string         `json:"id"`
	EntityID  string         `json:"entity_id,omitempty"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor,omitempty"`
	Channel   Channel        `json:"channel"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
