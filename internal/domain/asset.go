package domain

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"
)

// AssetClass is a tracked asset class or position with its risk and return estimates
type AssetClass struct {
	ID             string
	Name           string
	Bucket         StrategyBucket
	MarketValue    decimal.Decimal // Current holding, zero if not held
	ExpectedReturn float64
	Duration       float64
	Convexity      float64
}

// Universe is the ordered set of asset classes an optimization runs over
// Index i of every vector and matrix refers to Assets[i]
type Universe struct {
	Assets []AssetClass
}

// Validate ensures asset IDs are unique and the holdings are usable
func (u *Universe) Validate() error {
	if len(u.Assets) == 0 {
		return Invalid("universe.assets", "universe is empty")
	}
	seen := make(map[string]bool, len(u.Assets))
	for i, a := range u.Assets {
		if a.ID == "" {
			return Invalid("universe.assets", "asset at index %d has no ID", i)
		}
		if seen[a.ID] {
			return Invalid("universe.assets", "duplicate asset ID %s", a.ID)
		}
		seen[a.ID] = true
		if a.Bucket == "" {
			return Invalid("universe.assets", "asset %s has no strategy bucket", a.ID)
		}
		if a.MarketValue.LessThan(decimal.Zero) {
			return Invalid("universe.assets", "asset %s has negative market value", a.ID)
		}
		if math.IsNaN(a.ExpectedReturn) || math.IsInf(a.ExpectedReturn, 0) {
			return Invalid("universe.assets", "asset %s has a non-finite expected return", a.ID)
		}
	}
	return nil
}

// IDs returns the asset IDs in universe order
func (u *Universe) IDs() []string {
	ids := make([]string, len(u.Assets))
	for i, a := range u.Assets {
		ids[i] = a.ID
	}
	return ids
}

// Index returns the position of an asset ID, or -1
func (u *Universe) Index(id string) int {
	for i, a := range u.Assets {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// TotalValue sums the market value of all holdings
func (u *Universe) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, a := range u.Assets {
		total = total.Add(a.MarketValue)
	}
	return total
}

// CurrentWeights derives weights from market values
// An unfunded universe (zero total value) yields all-zero weights
func (u *Universe) CurrentWeights() []float64 {
	w := make([]float64, len(u.Assets))
	total := u.TotalValue()
	if total.IsZero() {
		return w
	}
	for i, a := range u.Assets {
		w[i] = a.MarketValue.Div(total).InexactFloat64()
	}
	return w
}

// CovarianceMatrix is a covariance estimate over an ordered set of asset IDs
type CovarianceMatrix struct {
	IDs    []string
	Values [][]float64
}

// Validate checks shape, symmetry and positive semi-definiteness within tol
// Runs before any solve so a malformed matrix never reaches the optimizer
func (c *CovarianceMatrix) Validate(tol float64) error {
	n := len(c.IDs)
	if n == 0 {
		return Invalid("covariance", "matrix is empty")
	}
	if len(c.Values) != n {
		return Invalid("covariance", "matrix has %d rows for %d assets", len(c.Values), n)
	}
	for i, row := range c.Values {
		if len(row) != n {
			return Invalid("covariance", "row %d has %d columns, expected %d", i, len(row), n)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Invalid("covariance", "entry (%d,%d) is not finite", i, j)
			}
		}
		if row[i] < -tol {
			return Invalid("covariance", "negative variance %v for %s", row[i], c.IDs[i])
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(c.Values[i][j]-c.Values[j][i]) > tol {
				return Invalid("covariance", "matrix is not symmetric at (%d,%d)", i, j)
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(c.Sym(), false); !ok {
		return Invalid("covariance", "eigen decomposition failed")
	}
	values := eig.Values(nil)
	minEig, maxEig := values[0], values[0]
	for _, v := range values {
		minEig = math.Min(minEig, v)
		maxEig = math.Max(maxEig, v)
	}
	if minEig < -tol*math.Max(1, math.Abs(maxEig)) {
		return Invalid("covariance", "matrix is not positive semi-definite (smallest eigenvalue %.3g)", minEig)
	}
	return nil
}

// Sym returns the matrix as a gonum symmetric matrix built from its upper triangle
func (c *CovarianceMatrix) Sym() *mat.SymDense {
	n := len(c.IDs)
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			data[i*n+j] = c.Values[i][j]
		}
	}
	return mat.NewSymDense(n, data)
}

// AlignTo returns the matrix reordered to the given ID order
func (c *CovarianceMatrix) AlignTo(ids []string) (*CovarianceMatrix, error) {
	pos := make(map[string]int, len(c.IDs))
	for i, id := range c.IDs {
		pos[id] = i
	}
	values := make([][]float64, len(ids))
	for i, a := range ids {
		pi, ok := pos[a]
		if !ok {
			return nil, Invalid("covariance", "no covariance row for asset %s", a)
		}
		values[i] = make([]float64, len(ids))
		for j, b := range ids {
			pj, ok := pos[b]
			if !ok {
				return nil, Invalid("covariance", "no covariance row for asset %s", b)
			}
			if pi >= len(c.Values) || pj >= len(c.Values[pi]) {
				return nil, Invalid("covariance", "matrix too small for asset %s", a)
			}
			values[i][j] = c.Values[pi][pj]
		}
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return &CovarianceMatrix{IDs: out, Values: values}, nil
}
