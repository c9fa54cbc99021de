package enrich

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/petrijr/stepwise/pkg/api"
)

// Campaign types known to the fallback tables.
const (
	TypePromotion    = "promotion"
	TypeEvent        = "event"
	TypeNewMenu      = "new_menu"
	TypeReengagement = "reengagement"
	TypeWelcome      = "welcome"
)

const defaultLanguage = "en"

type textTemplate struct {
	// format has exactly one %s, filled with the subject.
	format        string
	defaultPhrase string
	ctaText       string
}

type typeRow struct {
	keywords []string
	ctaType  string
	byLang   map[string]textTemplate
	image    string
}

var fallbackTable = map[string]typeRow{
	TypePromotion: {
		keywords: []string{"discount", "off", "%", "promo", "descuento", "desconto", "oferta"},
		ctaType:  "reply",
		image:    "defaults/promotion.png",
		byLang: map[string]textTemplate{
			"en": {"Special offer: %s! Show this message at the counter to redeem it.", "a treat from our kitchen", "Claim offer"},
			"es": {"Oferta especial: %s. Muestra este mensaje en caja para canjearla.", "un regalo de nuestra cocina", "Quiero la oferta"},
			"pt": {"Oferta especial: %s! Mostre esta mensagem no caixa para resgatar.", "um mimo da nossa cozinha", "Quero a oferta"},
		},
	},
	TypeEvent: {
		keywords: []string{"event", "night", "live", "party", "evento", "noche", "noite", "festa"},
		ctaType:  "reply",
		image:    "defaults/event.png",
		byLang: map[string]textTemplate{
			"en": {"You're invited: %s. Reply to save your table.", "a special evening with us", "Save my table"},
			"es": {"Estás invitado: %s. Responde para reservar tu mesa.", "una noche especial con nosotros", "Reservar mesa"},
			"pt": {"Você está convidado: %s. Responda para reservar sua mesa.", "uma noite especial com a gente", "Reservar mesa"},
		},
	},
	TypeNewMenu: {
		keywords: []string{"menu", "dish", "new", "menú", "cardápio", "prato", "nuevo", "novo"},
		ctaType:  "url",
		image:    "defaults/new_menu.png",
		byLang: map[string]textTemplate{
			"en": {"Just landed on our menu: %s. Come taste it first!", "fresh dishes from our chef", "See the menu"},
			"es": {"Nuevo en nuestro menú: %s. ¡Ven a probarlo primero!", "platos frescos de nuestro chef", "Ver el menú"},
			"pt": {"Novidade no cardápio: %s. Venha provar primeiro!", "pratos fresquinhos do nosso chef", "Ver cardápio"},
		},
	},
	TypeReengagement: {
		keywords: []string{"miss", "back", "return", "extrañamos", "volver", "saudade", "voltar"},
		ctaType:  "reply",
		image:    "defaults/reengagement.png",
		byLang: map[string]textTemplate{
			"en": {"We miss you! %s. Your table is waiting.", "It's been a while since your last visit", "I'll be back"},
			"es": {"¡Te extrañamos! %s. Tu mesa te espera.", "Hace tiempo que no nos visitas", "Vuelvo pronto"},
			"pt": {"Sentimos sua falta! %s. Sua mesa está esperando.", "Faz tempo que você não aparece", "Vou voltar"},
		},
	},
	TypeWelcome: {
		keywords: []string{"welcome", "hello", "hi", "bienvenido", "hola", "bem-vindo", "olá"},
		ctaType:  "reply",
		image:    "defaults/welcome.png",
		byLang: map[string]textTemplate{
			"en": {"Welcome! %s. Reply MENU to see what we're cooking today.", "Thanks for joining us", "Show menu"},
			"es": {"¡Bienvenido! %s. Responde MENU para ver lo que cocinamos hoy.", "Gracias por unirte", "Ver menú"},
			"pt": {"Bem-vindo! %s. Responda MENU para ver o que estamos preparando hoje.", "Obrigado por se juntar a nós", "Ver cardápio"},
		},
	},
}

func rowFor(campaignType string) typeRow {
	if row, ok := fallbackTable[normalize(campaignType)]; ok {
		return row
	}
	return fallbackTable[TypePromotion]
}

func templateFor(row typeRow, language string) textTemplate {
	if tpl, ok := row.byLang[normalize(language)]; ok {
		return tpl
	}
	return row.byLang[defaultLanguage]
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FallbackText deterministically synthesizes message text for p.
//
// The objective becomes the subject when one of its words is a keyword of
// the campaign type; otherwise the type's default phrase is used.
func FallbackText(p api.TextParams) api.TextContent {
	row := rowFor(p.Type)
	tpl := templateFor(row, p.Language)

	subject := tpl.defaultPhrase
	objective := strings.TrimSpace(p.Objective)
	words := tokenize(objective)
	for _, kw := range row.keywords {
		if slices.Contains(words, kw) {
			subject = objective
			break
		}
	}

	return api.TextContent{
		Text:       fmt.Sprintf(tpl.format, subject),
		CTAText:    tpl.ctaText,
		CTAType:    row.ctaType,
		ProducedBy: api.ProducedByFallback,
	}
}

// tokenize lowercases s and splits it into words. Hyphens stay inside a
// word and a percent sign is a word of its own.
func tokenize(s string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			cur.WriteRune(r)
		case r == '%':
			flush()
			words = append(words, "%")
		default:
			flush()
		}
	}
	flush()
	return words
}

// FallbackImage returns the static default asset for campaignType.
func FallbackImage(campaignType string) api.MediaResult {
	return api.MediaResult{
		MediaRef:   rowFor(campaignType).image,
		ProducedBy: api.ProducedByFallback,
	}
}
