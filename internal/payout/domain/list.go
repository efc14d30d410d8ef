package domain

import "github.com/smallbiznis/referralhub/pkg/db/pagination"

type ListPayoutsRequest struct {
	pagination.Pagination
	Status string
}

type ListPayoutsResponse struct {
	pagination.PageInfo
	Payouts []Payout `json:"payouts"`
}
