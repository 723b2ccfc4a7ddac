package sheets

import (
	"context"

	gsheets "google.golang.org/api/sheets/v4"
)

// ValuesAPI is the subset of the Sheets values endpoint the store uses.
type ValuesAPI interface {
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error)
	Update(ctx context.Context, spreadsheetID, writeRange string, rows [][]any) error
	Append(ctx context.Context, spreadsheetID, appendRange string, rows [][]any) error
}

// serviceValues adapts *sheets.Service to ValuesAPI.
type serviceValues struct {
	svc *gsheets.Service
}

func (v serviceValues) Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v serviceValues) Update(ctx context.Context, spreadsheetID, writeRange string, rows [][]any) error {
	_, err := v.svc.Spreadsheets.Values.Update(spreadsheetID, writeRange, &gsheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (v serviceValues) Append(ctx context.Context, spreadsheetID, appendRange string, rows [][]any) error {
	_, err := v.svc.Spreadsheets.Values.Append(spreadsheetID, appendRange, &gsheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
