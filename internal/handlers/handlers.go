package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/id-verify/internal/auth"
	"github.com/example/id-verify/internal/usecase"
)

var dobPattern = regexp.MustCompile(`^[0-9]{2}/[0-9]{2}/[0-9]{4}$`)

// verifyIdentityRequest is the wire shape of POST /verify-identity.
type verifyIdentityRequest struct {
	Name               string   `json:"name"`
	DOB                string   `json:"dob"`
	IdentityCardNumber string   `json:"identityCardNumber"`
	PhotoURL           string   `json:"photoUrl"`
	IdentityURLs       []string `json:"identityUrls"`
	Type               string   `json:"type"`
}

// validate enforces the boundary contract and normalizes the document type
// (including the legacy "aadhar" spelling) before the pipeline is invoked.
func (r *verifyIdentityRequest) validate() (usecase.Request, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return usecase.Request{}, errors.New("name is required")
	}
	if strings.TrimSpace(r.PhotoURL) == "" {
		return usecase.Request{}, errors.New("photoUrl is required")
	}
	if len(r.IdentityURLs) == 0 {
		return usecase.Request{}, errors.New("identityUrls must contain at least one url")
	}
	for _, u := range r.IdentityURLs {
		if strings.TrimSpace(u) == "" {
			return usecase.Request{}, errors.New("identityUrls must not contain empty entries")
		}
	}

	docType, ok := usecase.ParseDocumentType(r.Type)
	if !ok {
		return usecase.Request{}, fmt.Errorf("type %q is not one of aadhaar, passport, other", r.Type)
	}

	dob := strings.TrimSpace(r.DOB)
	cardNumber := strings.TrimSpace(r.IdentityCardNumber)
	if docType.RequiresIdentityFields() {
		if dob == "" {
			return usecase.Request{}, fmt.Errorf("dob is required for type %s", docType)
		}
		if !dobPattern.MatchString(dob) {
			return usecase.Request{}, errors.New("dob must be in DD/MM/YYYY format")
		}
		if cardNumber == "" {
			return usecase.Request{}, fmt.Errorf("identityCardNumber is required for type %s", docType)
		}
	}

	return usecase.Request{
		Name:               name,
		DOB:                dob,
		IdentityCardNumber: cardNumber,
		PhotoURL:           strings.TrimSpace(r.PhotoURL),
		IdentityURLs:       r.IdentityURLs,
		Type:               docType,
	}, nil
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.VerificationUseCase, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	router.POST("/verify-identity", authMiddleware, func(c *gin.Context) {
		var body verifyIdentityRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Validation Error", "message": "request body must be valid JSON"})
			return
		}

		req, err := body.validate()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Validation Error", "message": err.Error()})
			return
		}

		userID, _ := auth.GetUserID(c.Request.Context())
		requestID, result, err := uc.VerifyIdentity(c.Request.Context(), userID, req)
		if err != nil {
			writeVerificationError(c, err)
			return
		}

		c.JSON(http.StatusOK, formatResult(requestID, result))
	})

	router.GET("/result/:id", authMiddleware, func(c *gin.Context) {
		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Validation Error", "message": "id is required"})
			return
		}

		userID, _ := auth.GetUserID(c.Request.Context())
		record, err := uc.GetResult(c.Request.Context(), userID, requestID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not Found", "message": "result not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"requestId":      record.RequestID,
			"userId":         record.UserID,
			"documentType":   record.DocumentType,
			"isVerification": record.Verified,
			"confidence":     record.Confidence,
			"message":        record.Message,
			"createdAt":      record.CreatedAt,
		})
	})

	router.GET("/metrics/summary", authMiddleware, func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// writeVerificationError maps pipeline errors onto the external contract:
// a failed document type gate and an unfetchable photo are caller faults
// (400); anything else is a 500.
func writeVerificationError(c *gin.Context, err error) {
	var typeErr *usecase.DocumentTypeError
	switch {
	case errors.As(err, &typeErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"isDocumentTypeMatched": false,
			"message":               typeErr.Message,
		})
	case errors.Is(err, usecase.ErrPhotoUnavailable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Photo Unavailable", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "message": err.Error()})
	}
}

// formatResult renders the full success-path contract. Inapplicable flags are
// defaulted to false so the wire shape is always fully populated.
func formatResult(requestID string, result *usecase.Result) gin.H {
	message := result.Message
	if message == "" {
		message = "Verification complete"
	}
	return gin.H{
		"requestId":                       requestID,
		"isDocumentTypeMatched":           result.DocumentTypeMatched,
		"isNameMatched":                   result.NameMatched,
		"isDOBMatched":                    boolOrFalse(result.DOBMatched),
		"isIdentityCardNumberMatched":     boolOrFalse(result.IdentityCardNumberMatched),
		"isIdentityCardNumberFormatValid": boolOrFalse(result.IdentityCardNumberFormatValid),
		"isFaceMatched":                   result.FaceMatched,
		"confidence":                      result.Confidence,
		"isVerification":                  result.Verified,
		"message":                         message,
	}
}

func boolOrFalse(b *bool) bool {
	return b != nil && *b
}
