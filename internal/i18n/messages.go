package i18n

// DefaultMessages returns built-in translations for all supported locales.
// These can be overridden by loading JSON files from a directory.
func DefaultMessages() map[Locale]map[string]string {
	return map[Locale]map[string]string{
		LocaleEn: enMessages,
		LocaleDe: deMessages,
	}
}

var enMessages = map[string]string{
	"format.date":     "January 2, 2006",
	"format.datetime": "January 2, 2006 15:04",

	// Diff view
	"diff.title":              "Revision Changes",
	"diff.original":           "Original",
	"diff.revised":            "Revised",
	"diff.revision_not_found": "The requested revision could not be found.",
	"entry.return":            "Return to entry",

	// Entry header
	"header.latest":  "Latest update: %s",
	"header.history": "View History",
	"header.edit":    "Edit",

	// Edit form
	"form.title":        "Title",
	"form.body":         "Content",
	"form.author_name":  "Your name",
	"form.author_email": "Your email",
	"form.suggest":      "Suggest changes",

	// History
	"history.heading":   "History",
	"history.by":        "Revision by %s on %s",
	"history.show_diff": "Show diff",

	// Suggestions
	"suggestion.heading":     "Suggestions",
	"suggestion.by":          "Suggestion by %s on %s",
	"suggestion.change":      "%d change",
	"suggestion.changes":     "%d changes",
	"suggestion.none":        "No pending suggestions.",
	"suggestion.unavailable": "This suggestion could not be found.",

	// Contributors
	"contributors.heading": "Contributors",
	"contributors.count":   "%d contribution",
	"contributors.counts":  "%d contributions",

	"toc.label": "Table of Contents",
}

var deMessages = map[string]string{
	"format.date":     "02.01.2006",
	"format.datetime": "02.01.2006 15:04",

	"diff.title":              "Änderungen der Revision",
	"diff.original":           "Original",
	"diff.revised":            "Überarbeitet",
	"diff.revision_not_found": "Die angeforderte Revision wurde nicht gefunden.",
	"entry.return":            "Zurück zum Eintrag",

	"header.latest":  "Letzte Aktualisierung: %s",
	"header.history": "Verlauf anzeigen",
	"header.edit":    "Bearbeiten",

	"form.title":        "Titel",
	"form.body":         "Inhalt",
	"form.author_name":  "Dein Name",
	"form.author_email": "Deine E-Mail",
	"form.suggest":      "Änderungen vorschlagen",

	"history.heading":   "Verlauf",
	"history.by":        "Revision von %s am %s",
	"history.show_diff": "Unterschiede anzeigen",

	"suggestion.heading":     "Vorschläge",
	"suggestion.by":          "Vorschlag von %s am %s",
	"suggestion.change":      "%d Änderung",
	"suggestion.changes":     "%d Änderungen",
	"suggestion.none":        "Keine offenen Vorschläge.",
	"suggestion.unavailable": "Dieser Vorschlag wurde nicht gefunden.",

	"contributors.heading": "Mitwirkende",
	"contributors.count":   "%d Beitrag",
	"contributors.counts":  "%d Beiträge",

	"toc.label": "Inhaltsverzeichnis",
}
