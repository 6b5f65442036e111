package middleware

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"fhirstore/internal/fhirerr"
)

// statusForKind maps an engine error Kind to the HTTP status FHIR expects
// for it.
func statusForKind(k fhirerr.Kind) int {
	switch k {
	case fhirerr.KindMalformedRequest, fhirerr.KindValidation:
		return fiber.StatusBadRequest
	case fhirerr.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case fhirerr.KindNotFound:
		return fiber.StatusNotFound
	case fhirerr.KindGone:
		return fiber.StatusGone
	case fhirerr.KindConflict:
		return fiber.StatusConflict
	case fhirerr.KindPreconditionFailed:
		return fiber.StatusPreconditionFailed
	case fhirerr.KindUnsupported:
		return fiber.StatusUnprocessableEntity
	case fhirerr.KindTransient:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error as a FHIR OperationOutcome, the shape
// every response body in this API uses for failures.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fhirerr.Error
		if errors.As(err, &fe) {
			status := statusForKind(fe.Kind)
			if fe.Kind == fhirerr.KindTransient && fe.RetryAfter > 0 {
				c.Set("Retry-After", strconv.Itoa(fe.RetryAfter))
			}
			return c.Status(status).JSON(operationOutcome(fe.Issues))
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(operationOutcome([]fhirerr.Issue{{
				Severity:    fhirerr.SeverityError,
				Code:        "processing",
				Diagnostics: fiberErr.Message,
			}}))
		}

		log.Error("unhandled error", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(operationOutcome([]fhirerr.Issue{{
			Severity:    fhirerr.SeverityError,
			Code:        "exception",
			Diagnostics: "internal server error",
		}}))
	}
}

func operationOutcome(issues []fhirerr.Issue) fiber.Map {
	out := make([]fiber.Map, 0, len(issues))
	for _, i := range issues {
		entry := fiber.Map{
			"severity": string(i.Severity),
			"code":     i.Code,
		}
		if i.Diagnostics != "" {
			entry["diagnostics"] = i.Diagnostics
		}
		if len(i.Expression) > 0 {
			entry["expression"] = i.Expression
		}
		if len(i.Location) > 0 {
			entry["location"] = i.Location
		}
		out = append(out, entry)
	}
	return fiber.Map{
		"resourceType": "OperationOutcome",
		"issue":        out,
	}
}
