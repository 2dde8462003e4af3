// Package seeder generates fake spreadsheet rows for local testing.
//
// Rows imitate the hand-maintained finance sheets: headers come in English or
// Russian, amounts use a decimal comma, and dates are written day first.
package seeder

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/rawload"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// header names one logical column in both sheet languages.
type header struct {
	en, ru string
}

var (
	hDate        = header{"Date", "Дата"}
	hPaymentDate = header{"Payment date", "Дата платежа"}
	hType        = header{"Type", "Тип"}
	hClient      = header{"Client", "Клиент"}
	hVendor      = header{"Vendor", "Поставщик"}
	hService     = header{"Service", "Услуга"}
	hCategory    = header{"Category", "Категория"}
	hCurrency    = header{"Currency", "Валюта"}
	hDescription = header{"Description", "Описание"}
	hYear        = header{"Year", "Год"}
	hMonth       = header{"Month", "Месяц"}
	hHours       = header{"Hours", "Часы"}
	hTotalRub    = header{"Total RUB", "РУБ сумма"}
	hFxUsd       = header{"FX USD", "Курс USD"}
)

var (
	types      = []string{"Доход", "Расход", "Income", "Expense"}
	services   = []string{"Английский", "Шахматы", "Робототехника", "Swimming", "Art studio"}
	categories = []string{"Аренда", "Зарплата", "Маркетинг", "Tuition", "Supplies"}
	currencies = []string{"RUB", "USD", "EUR"}
)

// Generator produces rows. It is not safe for concurrent use.
type Generator struct {
	faker *gofakeit.Faker
	from  time.Time
	to    time.Time
}

// New returns a generator. A zero seed picks a random one.
func New(seed int64) *Generator {
	to := time.Now().UTC().Truncate(24 * time.Hour)
	return &Generator{
		faker: gofakeit.New(seed),
		from:  to.AddDate(-1, 0, 0),
		to:    to,
	}
}

// Row returns one fake row.
func (g *Generator) Row() payload.Object {
	f := g.faker
	russian := f.Bool()
	key := func(h header) string {
		if russian {
			return h.ru
		}
		return h.en
	}

	day := f.DateRange(g.from, g.to)
	row := payload.Object{
		key(hDate):     payload.String(day.Format("02.01.2006")),
		key(hType):     payload.String(f.RandomString(types)),
		key(hService):  payload.String(f.RandomString(services)),
		key(hCategory): payload.String(f.RandomString(categories)),
		key(hCurrency): payload.String(f.RandomString(currencies)),
		key(hYear):     payload.Int(int64(day.Year())),
		key(hMonth):    payload.Int(int64(day.Month())),
		key(hTotalRub): payload.String(commaDecimal(f.Float64Range(100, 250000))),
	}

	if f.Bool() {
		row[key(hClient)] = payload.String(f.Name())
	} else {
		row[key(hVendor)] = payload.String(f.Company())
	}
	if f.Number(0, 3) > 0 {
		paid := day.AddDate(0, 0, f.Number(0, 20))
		row[key(hPaymentDate)] = payload.String(paid.Format("02.01.2006"))
	} else {
		row[key(hPaymentDate)] = payload.String("")
	}
	if f.Number(0, 4) == 0 {
		row[key(hHours)] = payload.String(commaDecimal(float64(f.Number(1, 16)) / 2))
	}
	if f.Number(0, 4) == 0 {
		row[key(hFxUsd)] = payload.Number(fmt.Sprintf("%.2f", f.Float64Range(70, 110)))
	}
	if f.Bool() {
		row[key(hDescription)] = payload.String(f.Sentence(5))
	}
	return row
}

// Records returns count raw records for source. Ids are derived from the
// sheet row position starting at rawload.FirstDataRow.
func (g *Generator) Records(source string, count int, receivedAt time.Time) []models.RawRecord {
	rows := make([]payload.Object, count)
	for i := range rows {
		rows[i] = g.Row()
	}
	return rawload.Records(rows, rawload.Options{Source: source, ReceivedAt: receivedAt})
}

func commaDecimal(v float64) string {
	return strings.Replace(fmt.Sprintf("%.2f", v), ".", ",", 1)
}
