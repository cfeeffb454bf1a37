package notify

import (
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	adminSubject        = "Solicitud de suscripción a promociones"
	confirmationSubject = "¡Gracias por suscribirte a nuestras promociones!"
)

// BuildAdminNotice creates the message telling the shop inbox about a new subscriber.
func BuildAdminNotice(from, admin *mail.Email, subscriber string) *mail.SGMailV3 {
	plain := fmt.Sprintf("El siguiente usuario desea recibir promociones:\n\nCorreo: %s\n\nEste es un mensaje automático de suscripción.", subscriber)

	escaped := html.EscapeString(subscriber)
	htmlContent := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; color: #333;">
  <h2>Solicitud de suscripción a promociones</h2>
  <p>El siguiente usuario desea recibir promociones:</p>
  <p><strong>Correo:</strong> <a href="mailto:%s">%s</a></p>
  <p style="font-size: 0.9em; color: #666;">Este es un mensaje automático de suscripción.</p>
</div>`, escaped, escaped)

	message := mail.NewSingleEmail(from, adminSubject, admin, plain, htmlContent)
	message.SetReplyTo(mail.NewEmail("", subscriber))
	return message
}

// BuildConfirmation creates the confirmation sent to the subscriber.
func BuildConfirmation(from *mail.Email, subscriber string) *mail.SGMailV3 {
	plain := "Hemos recibido tu solicitud para recibir promociones. Pronto comenzarás a recibir nuestras mejores ofertas directamente en tu correo.\n\nSi tú no realizaste esta solicitud, por favor ignora este mensaje."

	htmlContent := `<div style="font-family: Arial, sans-serif; padding: 20px;">
  <h2>¡Gracias por suscribirte!</h2>
  <p>Hemos recibido tu solicitud para recibir promociones. Pronto comenzarás a recibir nuestras mejores ofertas directamente en tu correo.</p>
  <p>Si tú no realizaste esta solicitud, por favor ignora este mensaje.</p>
  <p style="font-size: 12px; color: #888;">Este es un mensaje automático. No respondas a este correo.</p>
</div>`

	return mail.NewSingleEmail(from, confirmationSubject, mail.NewEmail("", subscriber), plain, htmlContent)
}
