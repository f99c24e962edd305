package services

import (
	"strconv"
	"time"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/ru"
	"golang.org/x/text/language"
)

// Locale renders the human-readable labels of the reports.
type Locale struct {
	tag   language.Tag
	trans locales.Translator
}

var supportedLocales = []language.Tag{language.Russian, language.English}

var localeMatcher = language.NewMatcher(supportedLocales)

// NewLocale picks the best supported locale for the given BCP 47 name.
// Russian is the fallback for unknown or malformed names.
func NewLocale(name string) Locale {
	tag, err := language.Parse(name)
	if err != nil {
		return newLocale(language.Russian)
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return newLocale(language.Russian)
	}
	return newLocale(supportedLocales[idx])
}

func newLocale(tag language.Tag) Locale {
	if tag == language.English {
		return Locale{tag: tag, trans: en.New()}
	}
	return Locale{tag: language.Russian, trans: ru.New()}
}

// Tag returns the resolved language.
func (l Locale) Tag() language.Tag {
	return l.tag
}

func (l Locale) translator() locales.Translator {
	if l.trans == nil {
		return ru.New()
	}
	return l.trans
}

// CLDR wide month names are genitive in Russian; the yearly report labels
// standalone months.
var ruMonthsNominative = [12]string{
	"январь", "февраль", "март", "апрель", "май", "июнь",
	"июль", "август", "сентябрь", "октябрь", "ноябрь", "декабрь",
}

// MonthName is the standalone month name ("январь", "January").
func (l Locale) MonthName(m time.Month) string {
	if l.tag == language.Russian {
		return ruMonthsNominative[m-1]
	}
	return l.translator().MonthWide(m)
}

// Weekday is the full weekday name ("понедельник", "Monday").
func (l Locale) Weekday(d time.Weekday) string {
	return l.translator().WeekdayWide(d)
}

// LongDate is the long date format ("3 февраля 2025 г.", "February 3, 2025").
func (l Locale) LongDate(t time.Time) string {
	return l.translator().FmtDateLong(t)
}

// DayMonth is the day followed by the month name ("3 февраля", "3 February").
func (l Locale) DayMonth(t time.Time) string {
	return strconv.Itoa(t.Day()) + " " + l.translator().MonthWide(t.Month())
}
