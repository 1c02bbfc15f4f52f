package payment

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidProductCredits is returned for a malformed product table.
var ErrInvalidProductCredits = errors.New("payment: invalid product credits table")

// ProductCredits maps provider product ids to the credits they grant.
type ProductCredits map[string]int

// DefaultProductCredits returns the production product table.
func DefaultProductCredits() ProductCredits {
	return ProductCredits{
		"prod_N6rm4KG1ZeGvfnNOIzkjt":  30,  // basic
		"prod_3CQsZ5gNb1Nhkl9a3Yxhs2": 100, // standard
		"prod_5h3JThYd4iw4SIDm6L5sCO": 210, // premium
		"prod_1l9cjsowPhSJlsfrTTXlKb": 30,  // test
	}
}

// Credits returns the credits for productID and whether it is known.
func (p ProductCredits) Credits(productID string) (int, bool) {
	c, ok := p[productID]
	return c, ok
}

// String renders the table in the format ParseProductCredits reads.
func (p ProductCredits) String() string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+":"+strconv.Itoa(p[id]))
	}
	return strings.Join(parts, ",")
}

// ParseProductCredits reads "prod_a:30,prod_b:100".
// An empty string yields an empty table.
func ParseProductCredits(s string) (ProductCredits, error) {
	out := ProductCredits{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, amount, ok := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProductCredits, part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(amount))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProductCredits, part)
		}
		out[id] = n
	}
	return out, nil
}
