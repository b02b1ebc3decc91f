package remoteapi

// Credentials are the user-supplied login fields. They are never persisted or logged.
type Credentials struct {
	Locale   string `json:"lg" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Identity holds the display fields the remote API reports for a user.
// Role is optional; upstream variants disagree on whether it is sent.
type Identity struct {
	UserID   string `json:"user_id"`
	FullName string `json:"name"`
	Email    string `json:"email"`
	ImageURL string `json:"image"`
	Role     string `json:"role,omitempty"`
}

// LoginResult is the normalised outcome of a successful credential exchange.
type LoginResult struct {
	Token    string
	Identity Identity
}

// RegisterRequest mirrors the remote /users/register body.
type RegisterRequest struct {
	Locale   string `json:"lg"`
	FullName string `json:"fullName" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Contact  string `json:"contact" validate:"required,min=6"`
}

// Pagination mirrors the remote paginationData object.
type Pagination struct {
	ItemsPerPage      int    `json:"itemsPerPage" validate:"gte=1,lte=100"`
	CurrentPageNumber int    `json:"currentPageNumber" validate:"gte=0"`
	SortOrder         string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
	FilterBy          string `json:"filterBy"`
}

// DealFilter narrows a table-data listing. Nil fields are sent as null.
type DealFilter struct {
	ShopID         *int64  `json:"shopId"`
	BranchID       *int64  `json:"branchId"`
	CategoryTitle  *string `json:"categoryTitle"`
	TargetCustomer *string `json:"targetCustomer"`
}

// TableDataRequest is the body of POST /deal/table-data.
type TableDataRequest struct {
	Locale     string      `json:"lg"`
	Pagination Pagination  `json:"paginationData"`
	Filter     *DealFilter `json:"filter,omitempty"`
}

// DealDetailsRequest is the body of POST /deal/details.
type DealDetailsRequest struct {
	DealID int64  `json:"dealId"`
	Locale string `json:"lg"`
}

// TopDealsRequest is the body of POST /deal/random-top-deals.
type TopDealsRequest struct {
	CategoryIDs []int64 `json:"categoryIds" validate:"required,min=1"`
	Locale      string  `json:"lg"`
	DealID      int64   `json:"dealId"`
}

// DeleteDealRequest is the body of DELETE /deal/delete.
type DeleteDealRequest struct {
	Locale string `json:"lg"`
	DealID int64  `json:"dealId"`
}

// Response is an upstream reply passed back to callers largely untouched.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
