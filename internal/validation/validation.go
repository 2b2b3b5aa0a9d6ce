// Package validation checks chain identifiers, wallet addresses and request
// fields before they reach the scoring core.
package validation

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// MaxReasonLength bounds free-text flag reasons.
const MaxReasonLength = 500

// MaxEvidenceURLLength bounds evidence links on ingested flags.
const MaxEvidenceURLLength = 2048

// Family groups chains that share an address format.
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
	FamilyTron   Family = "tron"
)

// chains maps supported chain ids to their address family.
var chains = map[string]Family{
	"eth":       FamilyEVM,
	"base":      FamilyEVM,
	"polygon":   FamilyEVM,
	"bsc":       FamilyEVM,
	"arbitrum":  FamilyEVM,
	"optimism":  FamilyEVM,
	"avalanche": FamilyEVM,
	"sol":       FamilySolana,
	"tron":      FamilyTron,
}

// ChainFamily returns the address family of a chain id (case-insensitive).
func ChainFamily(chain string) (Family, bool) {
	f, ok := chains[strings.ToLower(strings.TrimSpace(chain))]
	return f, ok
}

// IsSupportedChain reports whether chain is a known chain id.
func IsSupportedChain(chain string) bool {
	_, ok := ChainFamily(chain)
	return ok
}

// IsValidAddress checks addr against the format of chain's family.
func IsValidAddress(chain, addr string) bool {
	family, ok := ChainFamily(chain)
	if !ok {
		return false
	}
	addr = strings.TrimSpace(addr)
	switch family {
	case FamilyEVM:
		return strings.HasPrefix(strings.ToLower(addr), "0x") && common.IsHexAddress(addr)
	case FamilySolana:
		b, err := base58.Decode(addr)
		return err == nil && len(b) == 32
	case FamilyTron:
		if !strings.HasPrefix(addr, "T") {
			return false
		}
		b, err := base58.Decode(addr)
		return err == nil && len(b) == 25 && b[0] == 0x41
	}
	return false
}

// SanitizeString trims whitespace, strips null bytes and invalid UTF-8, and
// cuts to at most maxLen bytes on a rune boundary.
func SanitizeString(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(strings.TrimSpace(s), "\x00", "")
	if maxLen <= 0 {
		return ""
	}
	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// WalletParamsMiddleware rejects routes whose :chain or :address params are
// malformed. Params that are absent on a route are not checked.
func WalletParamsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		chain := c.Param("chain")
		if chain == "" {
			c.Next()
			return
		}
		if !IsSupportedChain(chain) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_chain",
				"message": "unsupported chain: " + chain,
			})
			return
		}
		if addr := c.Param("address"); addr != "" && !IsValidAddress(chain, addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address is not valid for chain " + chain,
			})
			return
		}
		c.Next()
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their errors.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// ValidAddress checks value against chain's address format. Empty values
// pass; combine with Required for mandatory fields.
func ValidAddress(field, chain, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidAddress(chain, value) {
			return &ValidationError{Field: field, Message: "is not a valid " + chain + " address"}
		}
		return nil
	}
}
