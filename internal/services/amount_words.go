package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var currencyWords = map[string][2]string{
	"HNL": {"LEMPIRA", "LEMPIRAS"},
	"USD": {"DÓLAR", "DÓLARES"},
	"GTQ": {"QUETZAL", "QUETZALES"},
	"NIO": {"CÓRDOBA", "CÓRDOBAS"},
}

// AmountInWords spells an amount the way receipts print it:
// 1500.50 HNL -> "MIL QUINIENTOS LEMPIRAS CON 50/100"
func AmountInWords(amount decimal.Decimal, currency string) string {
	amount = amount.Abs().Round(2)
	whole := amount.Truncate(0)
	cents := amount.Sub(whole).Shift(2).IntPart()

	names, ok := currencyWords[strings.ToUpper(currency)]
	if !ok {
		names = [2]string{strings.ToUpper(currency), strings.ToUpper(currency)}
	}
	name := names[1]
	if whole.Equal(decimal.NewFromInt(1)) {
		name = names[0]
	}

	return fmt.Sprintf("%s %s CON %02d/100", spell(whole.IntPart()), name, cents)
}

var (
	wordUnits = [...]string{"CERO", "UN", "DOS", "TRES", "CUATRO", "CINCO", "SEIS", "SIETE", "OCHO", "NUEVE",
		"DIEZ", "ONCE", "DOCE", "TRECE", "CATORCE", "QUINCE", "DIECISÉIS", "DIECISIETE", "DIECIOCHO", "DIECINUEVE",
		"VEINTE", "VEINTIÚN", "VEINTIDÓS", "VEINTITRÉS", "VEINTICUATRO", "VEINTICINCO", "VEINTISÉIS", "VEINTISIETE",
		"VEINTIOCHO", "VEINTINUEVE"}
	wordTens     = [...]string{"", "", "", "TREINTA", "CUARENTA", "CINCUENTA", "SESENTA", "SETENTA", "OCHENTA", "NOVENTA"}
	wordHundreds = [...]string{"", "CIENTO", "DOSCIENTOS", "TRESCIENTOS", "CUATROCIENTOS", "QUINIENTOS",
		"SEISCIENTOS", "SETECIENTOS", "OCHOCIENTOS", "NOVECIENTOS"}
)

// spell writes n in Spanish words, apocopated before a noun ("VEINTIÚN", "UN")
func spell(n int64) string {
	switch {
	case n < 0:
		return "MENOS " + spell(-n)
	case n < 30:
		return wordUnits[n]
	case n < 100:
		if n%10 == 0 {
			return wordTens[n/10]
		}
		return wordTens[n/10] + " Y " + wordUnits[n%10]
	case n == 100:
		return "CIEN"
	case n < 1000:
		return joinWords(wordHundreds[n/100], n%100)
	case n < 1_000_000:
		prefix := "MIL"
		if n/1000 > 1 {
			prefix = spell(n/1000) + " MIL"
		}
		return joinWords(prefix, n%1000)
	case n < 1_000_000_000_000:
		prefix := "UN MILLÓN"
		if n/1_000_000 > 1 {
			prefix = spell(n/1_000_000) + " MILLONES"
		}
		return joinWords(prefix, n%1_000_000)
	}
	return fmt.Sprintf("%d", n)
}

func joinWords(prefix string, rest int64) string {
	if rest == 0 {
		return prefix
	}
	return prefix + " " + spell(rest)
}
