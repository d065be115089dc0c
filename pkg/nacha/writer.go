// Package nacha renders ACH files in the fixed-width NACHA format:
// 94-character records, blocking factor 10, one or more PPD batches.
package nacha

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	recordSize     = 94
	blockingFactor = 10

	ServiceMixed       = 200
	ServiceCreditsOnly = 220
	ServiceDebitsOnly  = 225

	CheckingCredit = 22
	CheckingDebit  = 27
	SavingsCredit  = 32
	SavingsDebit   = 37
)

type FileHeader struct {
	ImmediateDestination string // receiving point routing number, 9 digits
	ImmediateOrigin      string // 10 chars
	DestinationName      string
	OriginName           string
	CreatedAt            time.Time
	ReferenceCode        string
}

type Entry struct {
	TransactionCode int
	RDFIRouting     string // 9 digits; first 8 are the RDFI id, last is the check digit
	Account         string
	AmountCents     int64
	IndividualID    string
	IndividualName  string
	TraceNumber     string // 15 digits
}

func (e Entry) IsDebit() bool {
	return e.TransactionCode == CheckingDebit || e.TransactionCode == SavingsDebit
}

type Batch struct {
	CompanyName      string
	CompanyID        string
	SECCode          string
	EntryDescription string
	DescriptiveDate  time.Time
	EffectiveDate    time.Time
	ODFI             string // first 8 digits of the originating routing number
	Number           int
	Entries          []Entry
}

type File struct {
	Content     string
	ContentHash string
	EntryHash   string
	EntryCount  int
	TotalDebit  int64
	TotalCredit int64
}

var ErrEmpty = errors.New("nacha: no entries")

// Write renders the file. Output depends only on its inputs.
func Write(h FileHeader, batches []Batch) (*File, error) {
	var recs []string
	recs = append(recs, fileHeader(h))

	var (
		hashSum             int64
		count               int
		totalDebit, totalCr int64
	)
	for _, b := range batches {
		if len(b.Entries) == 0 {
			continue
		}
		svc := serviceClass(b.Entries)
		recs = append(recs, batchHeader(b, svc))
		var bHash, bDebit, bCredit int64
		for _, e := range b.Entries {
			if len(e.RDFIRouting) != 9 {
				return nil, fmt.Errorf("nacha: routing %q must be 9 digits", e.RDFIRouting)
			}
			if e.AmountCents <= 0 {
				return nil, fmt.Errorf("nacha: entry %s amount must be positive", e.TraceNumber)
			}
			recs = append(recs, entryDetail(e))
			rdfi, err := strconv.ParseInt(e.RDFIRouting[:8], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("nacha: routing %q is not numeric", e.RDFIRouting)
			}
			bHash += rdfi
			if e.IsDebit() {
				bDebit += e.AmountCents
			} else {
				bCredit += e.AmountCents
			}
		}
		recs = append(recs, batchControl(b, svc, bHash, bDebit, bCredit))
		hashSum += bHash
		count += len(b.Entries)
		totalDebit += bDebit
		totalCr += bCredit
	}
	if count == 0 {
		return nil, ErrEmpty
	}

	batchCount := 0
	for _, b := range batches {
		if len(b.Entries) > 0 {
			batchCount++
		}
	}
	total := len(recs) + 1
	blocks := (total + blockingFactor - 1) / blockingFactor
	entryHash := hash10(hashSum)
	recs = append(recs, "9"+
		num(int64(batchCount), 6)+
		num(int64(blocks), 6)+
		num(int64(count), 8)+
		entryHash+
		num(totalDebit, 12)+
		num(totalCr, 12)+
		strings.Repeat(" ", 39))
	for len(recs)%blockingFactor != 0 {
		recs = append(recs, strings.Repeat("9", recordSize))
	}

	content := strings.Join(recs, "\n") + "\n"
	sum := sha256.Sum256([]byte(content))
	return &File{
		Content:     content,
		ContentHash: hex.EncodeToString(sum[:]),
		EntryHash:   entryHash,
		EntryCount:  count,
		TotalDebit:  totalDebit,
		TotalCredit: totalCr,
	}, nil
}

// TransactionCode picks the entry code for account type and direction.
func TransactionCode(savings, debit bool) int {
	switch {
	case savings && debit:
		return SavingsDebit
	case savings:
		return SavingsCredit
	case debit:
		return CheckingDebit
	}
	return CheckingCredit
}

// TraceNumber is the ODFI id followed by a 7-digit sequence.
func TraceNumber(odfi string, seq int) string {
	return alphaNum(odfi, 8) + num(int64(seq), 7)
}

func serviceClass(entries []Entry) int {
	var debit, credit bool
	for _, e := range entries {
		if e.IsDebit() {
			debit = true
		} else {
			credit = true
		}
	}
	switch {
	case debit && credit:
		return ServiceMixed
	case debit:
		return ServiceDebitsOnly
	}
	return ServiceCreditsOnly
}

func fileHeader(h FileHeader) string {
	return "1" +
		"01" +
		" " + alphaNum(h.ImmediateDestination, 9) +
		alpha(h.ImmediateOrigin, 10) +
		h.CreatedAt.UTC().Format("060102") +
		h.CreatedAt.UTC().Format("1504") +
		"A" +
		"094" +
		"10" +
		"1" +
		alpha(h.DestinationName, 23) +
		alpha(h.OriginName, 23) +
		alpha(h.ReferenceCode, 8)
}

func batchHeader(b Batch, svc int) string {
	return "5" +
		num(int64(svc), 3) +
		alpha(b.CompanyName, 16) +
		alpha("", 20) +
		alpha(b.CompanyID, 10) +
		alpha(b.SECCode, 3) +
		alpha(b.EntryDescription, 10) +
		b.DescriptiveDate.UTC().Format("060102") +
		b.EffectiveDate.UTC().Format("060102") +
		"   " +
		"1" +
		alphaNum(b.ODFI, 8) +
		num(int64(b.Number), 7)
}

func entryDetail(e Entry) string {
	return "6" +
		num(int64(e.TransactionCode), 2) +
		e.RDFIRouting[:8] +
		e.RDFIRouting[8:9] +
		alpha(e.Account, 17) +
		num(e.AmountCents, 10) +
		alpha(e.IndividualID, 15) +
		alpha(e.IndividualName, 22) +
		"  " +
		"0" +
		alphaNum(e.TraceNumber, 15)
}

func batchControl(b Batch, svc int, hash, debit, credit int64) string {
	return "8" +
		num(int64(svc), 3) +
		num(int64(len(b.Entries)), 6) +
		hash10(hash) +
		num(debit, 12) +
		num(credit, 12) +
		alpha(b.CompanyID, 10) +
		strings.Repeat(" ", 19) +
		strings.Repeat(" ", 6) +
		alphaNum(b.ODFI, 8) +
		num(int64(b.Number), 7)
}

// hash10 keeps the rightmost ten digits of the routing sum.
func hash10(sum int64) string { return num(sum%10_000_000_000, 10) }

func num(v int64, width int) string {
	s := fmt.Sprintf("%0*d", width, v)
	if len(s) > width {
		return s[len(s)-width:]
	}
	return s
}

// alpha is left-justified, space-padded, upper-case and truncated.
func alpha(s string, width int) string {
	s = strings.ToUpper(strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return ' '
		}
		return r
	}, s))
	if len(s) > width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// alphaNum right-justifies digit strings with leading zeros.
func alphaNum(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return strings.Repeat("0", width-len(s)) + s
}
