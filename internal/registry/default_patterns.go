package registry

import "github.com/tech1ee/finuts/internal/model"

// DefaultGroups returns the built-in pattern table. Transfers and
// groceries are checked before the generic domains so specific matches
// win over catch-alls. Cyrillic alternatives are kept outside \b anchors
// because Go's \b is ASCII-only.
func DefaultGroups() []Group {
	return []Group{
		{
			Name:     "transfers",
			Priority: 100,
			Patterns: []model.MerchantPattern{
				{Pattern: `перевод|\b(transfer|xfer|p2p)\b`, Category: "transfers", Confidence: 0.92},
				{Pattern: `пополнение|\b(deposit|top[ -]?up)\b`, Category: "transfers", Confidence: 0.88},
				{Pattern: `kaspi\s*(gold|перевод)`, Category: "transfers", Confidence: 0.90, DisplayName: "Kaspi"},
			},
		},
		{
			Name:     "groceries",
			Priority: 95,
			Patterns: []model.MerchantPattern{
				{Pattern: `\bmagnum\b`, Category: "groceries", Confidence: 0.95, DisplayName: "Magnum"},
				{Pattern: `\bsmall\b`, Category: "groceries", Confidence: 0.90, DisplayName: "Small"},
				{Pattern: `\bgalmart\b`, Category: "groceries", Confidence: 0.93, DisplayName: "Galmart"},
				{Pattern: `магнит|пятерочка|пятёрочка|перекресток|перекрёсток`, Category: "groceries", Confidence: 0.93},
				{Pattern: `супермаркет|продукты|\b(grocery|supermarket)\b`, Category: "groceries", Confidence: 0.85},
			},
		},
		{
			Name:     "transport",
			Priority: 90,
			Patterns: []model.MerchantPattern{
				{Pattern: `яндекс[. ]?такси|\byandex[. ]?(go|taxi)\b`, Category: "transport", Confidence: 0.95, DisplayName: "Yandex Go"},
				{Pattern: `\buber\b`, Category: "transport", Confidence: 0.93, DisplayName: "Uber"},
				{Pattern: `метро|автобус|проезд|\b(metro|bus)\b`, Category: "transport", Confidence: 0.82},
				{Pattern: `азс|газпромнефть|\b(petrol|gas station|helios|sinooil)\b`, Category: "transport", Confidence: 0.88},
			},
		},
		{
			Name:     "utilities",
			Priority: 85,
			Patterns: []model.MerchantPattern{
				{Pattern: `билайн|\b(beeline|kcell|activ|tele2|altel)\b`, Category: "utilities", Confidence: 0.93, DisplayName: "Beeline"},
				{Pattern: `коммунальн|комуслуг|электроэнерг|водоснабж|\bkegoc\b`, Category: "utilities", Confidence: 0.90},
				{Pattern: `интернет|казахтелеком|\binternet\b`, Category: "utilities", Confidence: 0.85},
			},
		},
		{
			Name:     "dining",
			Priority: 80,
			Patterns: []model.MerchantPattern{
				{Pattern: `\b(wolt|glovo|chocofood)\b`, Category: "dining", Confidence: 0.93, DisplayName: "Wolt"},
				{Pattern: `\b(mcdonalds|kfc|burger king|hardee)\b`, Category: "dining", Confidence: 0.93, DisplayName: "KFC"},
				{Pattern: `кафе|ресторан|кофейня|\b(coffee|cafe|restaurant)\b`, Category: "dining", Confidence: 0.85},
			},
		},
		{
			Name:     "shopping",
			Priority: 75,
			Patterns: []model.MerchantPattern{
				{Pattern: `\b(wildberries|ozon|aliexpress|amazon)\b`, Category: "shopping", Confidence: 0.92, DisplayName: "Wildberries"},
				{Pattern: `kaspi\s*(магазин|shop)`, Category: "shopping", Confidence: 0.88},
				{Pattern: `одежда|обувь|\b(clothing|h&m|zara|lc waikiki)\b`, Category: "shopping", Confidence: 0.85},
			},
		},
		{
			Name:     "health",
			Priority: 70,
			Patterns: []model.MerchantPattern{
				{Pattern: `аптека|биосфера|\b(pharmacy|europharma)\b`, Category: "health", Confidence: 0.92},
				{Pattern: `клиника|мед\s*центр|стоматолог|\b(clinic|hospital)\b`, Category: "health", Confidence: 0.88},
			},
		},
		{
			Name:     "entertainment",
			Priority: 65,
			Patterns: []model.MerchantPattern{
				{Pattern: `кинопоиск|\b(netflix|spotify|youtube premium|ivi)\b`, Category: "entertainment", Confidence: 0.93, DisplayName: "Netflix"},
				{Pattern: `кинотеатр|\b(cinema|kinopark|chaplin)\b`, Category: "entertainment", Confidence: 0.88},
			},
		},
		{
			Name:     "income",
			Priority: 60,
			Patterns: []model.MerchantPattern{
				{Pattern: `зарплата|заработная плата|\b(salary|payroll|wages)\b`, Category: "income", Confidence: 0.95},
				{Pattern: `процент|вознаграждение|\b(interest|dividend)\b`, Category: "income", Confidence: 0.85},
			},
		},
		{
			Name:     "other",
			Priority: 10,
			Patterns: []model.MerchantPattern{
				{Pattern: `комиссия|\b(fee|service charge)\b`, Category: "fees", Confidence: 0.80},
				{Pattern: `снятие|банкомат|\b(withdrawal|atm)\b`, Category: "cash", Confidence: 0.82},
			},
		},
	}
}
