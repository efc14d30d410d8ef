package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// RemittanceData is the pre-formatted content of a payout remittance advice.
type RemittanceData struct {
	PayoutID         string
	ReferralCode     string
	CompanyName      string
	PartnerID        string
	Amount           string
	AmountPaid       string
	PaymentReference string
	PaidAt           string
	BankName         string
	AccountName      string
	AccountNumber    string
	Notes            string
}

func (p *PDFProvider) GenerateRemittance(ctx context.Context, data RemittanceData) ([]byte, error) {
	if data.PayoutID == "" {
		return nil, errors.New("remittance payout id is required")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Remittance advice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Payout "+data.PayoutID, props.Text{
			Size:  9,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Referral", props.Text{Style: fontstyle.Bold}),
			text.New(data.ReferralCode, props.Text{Top: 5}),
			text.New(data.CompanyName, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Paid to", props.Text{Style: fontstyle.Bold}),
			text.New(data.AccountName, props.Text{Top: 5}),
			text.New(data.BankName+" "+data.AccountNumber, props.Text{Top: 10}),
			text.New("Partner "+data.PartnerID, props.Text{Top: 15, Size: 8}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, data.AmountPaid+" paid on "+data.PaidAt, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	rows := [][2]string{
		{"Commission requested", data.Amount},
		{"Amount paid", data.AmountPaid},
		{"Payment reference", data.PaymentReference},
		{"Paid at", data.PaidAt},
	}
	for _, row := range rows {
		m.AddRow(8,
			text.NewCol(6, row[0], props.Text{Size: 9}),
			text.NewCol(6, row[1], props.Text{Size: 9, Align: align.Right}),
		)
	}

	if data.Notes != "" {
		m.AddRow(20,
			text.NewCol(12, data.Notes, props.Text{Size: 9, Top: 6}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
