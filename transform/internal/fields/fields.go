// Package fields defines the canonical staging fields and the header aliases
// under which spreadsheet exports deliver them.
//
// Sheets are maintained by hand in English and Russian, so one logical column
// arrives under several headers ("Total RUB", "РУБ сумма", "total_rub"). The
// table below is the single source of truth for that mapping.
package fields

// Kind is the typed shape a canonical field is coerced to.
type Kind uint8

const (
	KindText Kind = iota
	KindTimestamp
	KindInteger
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTimestamp:
		return "timestamp"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	default:
		return "unknown"
	}
}

// Canonical staging column names.
const (
	Date            = "date"
	PaymentDate     = "payment_date"
	PaymentDateOrig = "payment_date_orig"

	Task           = "task"
	Type           = "type"
	Client         = "client"
	Vendor         = "vendor"
	Cashier        = "cashier"
	Service        = "service"
	Approver       = "approver"
	Category       = "category"
	Currency       = "currency"
	Subcategory    = "subcategory"
	Description    = "description"
	DirectIndirect = "direct_indirect"
	CatNew         = "cat_new"
	CatFinal       = "cat_final"
	SubcatNew      = "subcat_new"
	SubcatFinal    = "subcat_final"
	Kategoriya     = "kategoriya"
	Podstatya      = "podstatya"
	Statya         = "statya"
	VidyRaskhodov  = "vidy_raskhodov"
	Paket          = "paket"
	PackageSecond  = "package_secondary"

	Year        = "year"
	Month       = "month"
	Quarter     = "quarter"
	CountVendor = "count_vendor"

	Hours           = "hours"
	FxRub           = "fx_rub"
	FxUsd           = "fx_usd"
	TotalRub        = "total_rub"
	TotalUsd        = "total_usd"
	SumTotalRub     = "sum_total_rub"
	TotalInCurrency = "total_in_currency"
	RubSumma        = "rub_summa"
	UsdSumma        = "usd_summa"

	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
	UpdatedBy = "updated_by"
)

// FieldInfo describes one canonical field.
type FieldInfo struct {
	Column  string
	Kind    Kind
	Aliases []string
}

// Canonical lists every business field in staging column order. Alias order
// matters: the first alias present in a row wins.
var Canonical = []FieldInfo{
	// Dates
	{Column: Date, Kind: KindTimestamp, Aliases: []string{"Date", "Дата", "date"}},
	{Column: PaymentDate, Kind: KindTimestamp, Aliases: []string{"Payment date", "Payment Date", "Дата платежа", "payment_date"}},
	{Column: PaymentDateOrig, Kind: KindTimestamp, Aliases: []string{"Payment date (orig)", "Дата платежа (ориг)", "payment_date_orig"}},

	// Free text
	{Column: Task, Kind: KindText, Aliases: []string{"Task", "Задача", "task"}},
	{Column: Type, Kind: KindText, Aliases: []string{"Type", "Тип", "type"}},
	{Column: Client, Kind: KindText, Aliases: []string{"Client", "Клиент", "client"}},
	{Column: Vendor, Kind: KindText, Aliases: []string{"Vendor", "Поставщик", "vendor"}},
	{Column: Cashier, Kind: KindText, Aliases: []string{"Cashier", "Кассир", "cashier"}},
	{Column: Service, Kind: KindText, Aliases: []string{"Service", "Услуга", "service"}},
	{Column: Approver, Kind: KindText, Aliases: []string{"Approver", "Утверждающий", "approver"}},
	{Column: Category, Kind: KindText, Aliases: []string{"Category", "Категория", "category"}},
	{Column: Currency, Kind: KindText, Aliases: []string{"Currency", "Валюта", "currency"}},
	{Column: Subcategory, Kind: KindText, Aliases: []string{"Subcategory", "Подкатегория", "subcategory"}},
	{Column: Description, Kind: KindText, Aliases: []string{"Description", "Описание", "description"}},
	{Column: DirectIndirect, Kind: KindText, Aliases: []string{"Direct/Indirect", "Прямые/Косвенные", "direct_indirect"}},

	// Category tree (finance team naming)
	{Column: CatNew, Kind: KindText, Aliases: []string{"cat_new", "Категория новая"}},
	{Column: CatFinal, Kind: KindText, Aliases: []string{"cat_final", "Категория финал"}},
	{Column: SubcatNew, Kind: KindText, Aliases: []string{"subcat_new", "Подкатегория новая"}},
	{Column: SubcatFinal, Kind: KindText, Aliases: []string{"subcat_final", "Подкатегория финал"}},
	{Column: Kategoriya, Kind: KindText, Aliases: []string{"kategoriya", "Категория"}},
	{Column: Podstatya, Kind: KindText, Aliases: []string{"podstatya", "Подстатья"}},
	{Column: Statya, Kind: KindText, Aliases: []string{"statya", "Статья"}},
	{Column: VidyRaskhodov, Kind: KindText, Aliases: []string{"vidy_raskhodov", "Виды расходов"}},

	// Packages
	{Column: Paket, Kind: KindText, Aliases: []string{"paket", "Пакет", "package"}},
	{Column: PackageSecond, Kind: KindText, Aliases: []string{"package_secondary", "package secondary", "Пакет вторичный"}},

	// Integers
	{Column: Year, Kind: KindInteger, Aliases: []string{"Year", "Год", "year"}},
	{Column: Month, Kind: KindInteger, Aliases: []string{"Month", "Месяц", "month"}},
	{Column: Quarter, Kind: KindInteger, Aliases: []string{"Quarter", "Квартал", "quarter"}},
	{Column: CountVendor, Kind: KindInteger, Aliases: []string{"Count vendor", "Количество поставщиков", "count_vendor"}},

	// Money and rates
	{Column: Hours, Kind: KindDecimal, Aliases: []string{"Hours", "Часы", "hours"}},
	{Column: FxRub, Kind: KindDecimal, Aliases: []string{"FX RUB", "Курс РУБ", "fx_rub"}},
	{Column: FxUsd, Kind: KindDecimal, Aliases: []string{"FX USD", "Курс USD", "fx_usd"}},
	{Column: TotalRub, Kind: KindDecimal, Aliases: []string{"Total RUB", "РУБ сумма", "total_rub", "rub_summa", "РУБ Сумма"}},
	{Column: TotalUsd, Kind: KindDecimal, Aliases: []string{"Total USD", "USD сумма", "total_usd", "usd_summa"}},
	{Column: SumTotalRub, Kind: KindDecimal, Aliases: []string{"sum Total RUB", "Сумма РУБ", "sum_total_rub"}},
	{Column: TotalInCurrency, Kind: KindDecimal, Aliases: []string{"Total in currency", "Сумма в валюте", "total_in_currency"}},
	{Column: RubSumma, Kind: KindDecimal, Aliases: []string{"rub_summa", "РУБ Сумма"}},
	{Column: UsdSumma, Kind: KindDecimal, Aliases: []string{"usd_summa", "USD Сумма"}},

	// Audit columns carried inside the row
	{Column: CreatedAt, Kind: KindTimestamp, Aliases: []string{"created_at"}},
	{Column: UpdatedAt, Kind: KindTimestamp, Aliases: []string{"updated_at"}},
	{Column: UpdatedBy, Kind: KindText, Aliases: []string{"updated_by"}},
}

var byColumn = func() map[string]FieldInfo {
	m := make(map[string]FieldInfo, len(Canonical))
	for _, f := range Canonical {
		m[f.Column] = f
	}
	return m
}()

// Lookup returns the definition of a canonical column.
func Lookup(column string) (FieldInfo, bool) {
	f, ok := byColumn[column]
	return f, ok
}

// Columns returns the canonical column names of the given kind, in table order.
func Columns(kind Kind) []string {
	var out []string
	for _, f := range Canonical {
		if f.Kind == kind {
			out = append(out, f.Column)
		}
	}
	return out
}
