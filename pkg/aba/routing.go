// Package aba validates US bank routing (ABA) and account numbers.
package aba

import "regexp"

var reAccount = regexp.MustCompile(`^[0-9]{4,17}$`)

// ValidRouting checks length, digits and the 3-7-1 weighted checksum.
func ValidRouting(rtn string) bool {
	if len(rtn) != 9 {
		return false
	}
	weights := [9]int{3, 7, 1, 3, 7, 1, 3, 7, 1}
	sum := 0
	for i := 0; i < 9; i++ {
		c := rtn[i]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * weights[i]
	}
	return sum != 0 && sum%10 == 0
}

// ValidAccount accepts 4 to 17 digits, the NACHA DFI account field width.
func ValidAccount(acct string) bool { return reAccount.MatchString(acct) }
