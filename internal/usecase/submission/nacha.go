package submission

import (
	"errors"
	"strings"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/company"
	"halonet-payments/pkg/nacha"

	"github.com/shopspring/decimal"
)

var entryDescriptions = map[batch.Type]string{
	batch.TypePayroll:     "PAYROLL",
	batch.TypeGarnishment: "GARNISH",
	batch.TypeBonus:       "BONUS",
	batch.TypeCorrection:  "CORRECTION",
}

// payable drops entries that will never be sent.
func payable(entries []batch.Entry) []batch.Entry {
	out := make([]batch.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status == batch.EntryVoided || e.Status == batch.EntryFailed {
			continue
		}
		out = append(out, e)
	}
	return out
}

// render builds the ACH file and stamps trace numbers on entries. The output
// depends only on the batch, its entries, the settings and the ODFI.
func render(b *batch.Batch, entries []batch.Entry, s *company.Settings, odfiRouting, odfiName string) (*nacha.File, error) {
	if s.CompanyIdentification == "" {
		return nil, apperrors.Wrap(apperrors.ErrPrecondition, "company %s has no NACHA company identification", b.CompanyID)
	}
	if len(odfiRouting) != 9 {
		return nil, apperrors.Wrap(apperrors.ErrPrecondition, "originating routing number is not configured")
	}
	odfi := odfiRouting[:8]
	name := s.CompanyName
	if name == "" {
		name = b.CompanyID
	}

	out := make([]nacha.Entry, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		e.TraceNumber = nacha.TraceNumber(odfi, e.Sequence)
		ident := e.EmployeeID
		if ident == "" {
			ident = e.EntryID
		}
		out = append(out, nacha.Entry{
			TransactionCode: nacha.TransactionCode(e.AccountType == batch.AccountSavings, e.TransactionType == batch.TxDebit),
			RDFIRouting:     e.RoutingNumber,
			Account:         e.AccountNumber,
			AmountCents:     e.Amount.Shift(2).IntPart(),
			IndividualID:    ident,
			IndividualName:  e.RecipientName,
			TraceNumber:     e.TraceNumber,
		})
	}

	ref := strings.ReplaceAll(b.BatchNumber, "-", "")
	if len(ref) > 8 {
		ref = ref[len(ref)-8:]
	}
	f, err := nacha.Write(nacha.FileHeader{
		ImmediateDestination: odfiRouting,
		ImmediateOrigin:      s.CompanyIdentification,
		DestinationName:      odfiName,
		OriginName:           name,
		CreatedAt:            b.CreatedAt,
		ReferenceCode:        ref,
	}, []nacha.Batch{{
		CompanyName:      name,
		CompanyID:        s.CompanyIdentification,
		SECCode:          "PPD",
		EntryDescription: entryDescriptions[b.Type],
		DescriptiveDate:  b.EffectiveDate,
		EffectiveDate:    b.EffectiveDate,
		ODFI:             odfi,
		Number:           1,
		Entries:          out,
	}})
	if errors.Is(err, nacha.ErrEmpty) {
		return nil, apperrors.Wrap(apperrors.ErrPrecondition, "batch %s has no payable entries", b.BatchID)
	}
	return f, err
}

func toFile(b *batch.Batch, f *nacha.File) *NACHAFile {
	return &NACHAFile{
		BatchID:     b.BatchID,
		FileName:    b.BatchNumber + ".ach",
		Content:     f.Content,
		ContentHash: f.ContentHash,
		EntryHash:   f.EntryHash,
		EntryCount:  f.EntryCount,
		TotalDebit:  decimal.New(f.TotalDebit, -2),
		TotalCredit: decimal.New(f.TotalCredit, -2),
	}
}
