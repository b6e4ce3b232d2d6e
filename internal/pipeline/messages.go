package pipeline

import (
	"golang.org/x/text/language"

	"postty/internal/domain"
	"postty/internal/langdetect"
)

// localizedMessage maps a fault to the caller-facing text in the prompt's
// language. Raw provider errors never reach the caller.
func localizedMessage(kind domain.FaultKind, tag language.Tag) string {
	es := langdetect.Code(tag) == "es"
	switch kind {
	case domain.FaultSafetyBlock:
		if es {
			return "Tu descripción fue bloqueada por la política de contenido. Reformúlala e inténtalo de nuevo."
		}
		return "Your prompt was blocked by the content policy. Please rephrase it and try again."
	case domain.FaultValidation:
		if es {
			return "La solicitud no es válida. Revisa los datos enviados."
		}
		return "The request is invalid. Please check the submitted data."
	default:
		if es {
			return "No pudimos generar la imagen. Inténtalo de nuevo en unos minutos."
		}
		return "We could not generate the image. Please try again in a few minutes."
	}
}
