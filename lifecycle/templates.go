package lifecycle

import (
	"strconv"
	"strings"

	"github.com/pharmasuite/lifecycle-engine/models"
)

type messageTemplate struct {
	Subject string
	Body    string
}

var fallbackTemplate = messageTemplate{
	Subject: "Notification PharmaSuite",
	Body:    "Vous avez une nouvelle notification.",
}

// templateTable covers the type×channel pairs the scheduler uses. Lookups
// are total: anything missing falls back to a generic message instead of
// failing at dispatch time.
var templateTable = map[models.NotificationType]map[models.NotificationChannel]messageTemplate{
	models.NotificationExpirationReminder: {
		models.ChannelEmail: {
			Subject: "Votre abonnement PharmaSuite expire bientôt",
			Body:    "Bonjour,\n\nNous vous rappelons que votre abonnement PharmaSuite expire dans 2 jours.\nPour continuer sans interruption, veuillez renouveler votre abonnement depuis votre tableau de bord.\n\nSi vous avez des questions, contactez notre support.",
		},
		models.ChannelWhatsApp: {
			Subject: "Rappel abonnement",
			Body:    "Bonjour! Votre abonnement PharmaSuite expire dans 2 jours. Renouvelez-le depuis votre tableau de bord.",
		},
		models.ChannelBoth: {
			Subject: "Votre abonnement PharmaSuite expire bientôt",
			Body:    "Votre abonnement expire bientôt. Veuillez renouveler.",
		},
	},
	models.NotificationPaymentFailed: {
		models.ChannelEmail: {
			Subject: "Échec du paiement - Action requise",
			Body:    "Bonjour,\n\nNous n'avons pas pu traiter votre paiement pour votre abonnement PharmaSuite (tentative {{attempts}}/3).\nVeuillez mettre à jour vos informations de paiement.\n\nSi vous avez des difficultés, contactez notre support immédiatement.",
		},
		models.ChannelWhatsApp: {
			Subject: "Échec de paiement",
			Body:    "Échec du paiement pour votre abonnement PharmaSuite (tentative {{attempts}}/3). Veuillez réessayer.",
		},
		models.ChannelBoth: {
			Subject: "Échec du paiement",
			Body:    "Votre paiement a échoué (tentative {{attempts}}/3). Veuillez réessayer.",
		},
	},
	models.NotificationNewFeature: {
		models.ChannelEmail: {
			Subject: "Nouvelle fonctionnalité disponible",
			Body:    "Nous avons ajouté une nouvelle fonctionnalité à PharmaSuite. Découvrez-la maintenant dans votre tableau de bord.",
		},
		models.ChannelWhatsApp: {
			Subject: "Nouvelle fonctionnalité",
			Body:    "Nouvelle fonctionnalité disponible dans PharmaSuite. Découvrez-la dans votre tableau de bord.",
		},
		models.ChannelBoth: {
			Subject: "Nouvelle fonctionnalité",
			Body:    "Découvrez notre nouvelle fonctionnalité!",
		},
	},
}

func templateFor(notificationType models.NotificationType, channel models.NotificationChannel) messageTemplate {
	channels, found := templateTable[notificationType]
	if !found {
		return fallbackTemplate
	}

	template, found := channels[channel]
	if !found {
		return fallbackTemplate
	}

	return template
}

func substituteAttempts(body string, attempts int) string {
	return strings.ReplaceAll(body, "{{attempts}}", strconv.Itoa(attempts))
}
