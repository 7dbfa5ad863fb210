package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyStatement = errors.New("empty_statement")

// StatementData is a monthly usage statement, already formatted for print.
type StatementData struct {
	OrgName     string
	OrgID       string
	Month       string
	PlanName    string
	GeneratedAt string

	Allotment  string
	Used       string
	Remaining  string
	Percentage string

	Events []StatementLine
	Users  []StatementLine
}

type StatementLine struct {
	Label   string
	Count   int64
	Credits int64
	Share   string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	if data.OrgID == "" || data.Month == "" {
		return nil, ErrEmptyStatement
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(15,
		text.NewCol(8, "Usage statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.Month, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New(data.OrgName, props.Text{Style: fontstyle.Bold}),
			text.New("Organization: "+data.OrgID, props.Text{Top: 5, Size: 9}),
			text.New("Plan: "+data.PlanName, props.Text{Top: 9, Size: 9}),
		),
		col.New(6).Add(
			text.New("Generated "+data.GeneratedAt, props.Text{Size: 9, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(3, "Monthly credits", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Used", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Remaining", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Used %", props.Text{Style: fontstyle.Bold, Size: 9}),
	)
	m.AddRow(10,
		text.NewCol(3, data.Allotment, props.Text{Size: 9}),
		text.NewCol(3, data.Used, props.Text{Size: 9}),
		text.NewCol(3, data.Remaining, props.Text{Size: 9}),
		text.NewCol(3, data.Percentage, props.Text{Size: 9}),
	)

	addTable(m, "Event type", data.Events)
	addTable(m, "User", data.Users)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}

func addTable(m core.Maroto, heading string, lines []StatementLine) {
	m.AddRow(8, line.NewCol(12))
	m.AddRow(10,
		text.NewCol(6, heading, props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Count", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Credits", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Share", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	if len(lines) == 0 {
		m.AddRow(8, text.NewCol(12, "No usage recorded", props.Text{Size: 9, Style: fontstyle.Italic}))
		return
	}
	for _, l := range lines {
		m.AddRow(8,
			text.NewCol(6, l.Label, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", l.Count), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, fmt.Sprintf("%d", l.Credits), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, l.Share, props.Text{Size: 9, Align: align.Right}),
		)
	}
}
