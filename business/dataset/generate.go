package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Period covered by the synthetic snapshot: September to December 2025.
var (
	PeriodStart = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	PeriodEnd   = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// Fixture is a complete synthetic snapshot held in memory.
type Fixture struct {
	Stores    []Store
	Products  []Product
	Consumers []Consumer
	Lines     []OrderLine
}

// OrderCount returns the number of distinct orders with the given status.
// An empty status counts every order.
func (fx Fixture) OrderCount(status string) int {
	seen := make(map[string]struct{})
	for _, l := range fx.Lines {
		if status == "" || l.OrderStatus == status {
			seen[l.OrderID] = struct{}{}
		}
	}

	return len(seen)
}

// =============================================================================

var stores = []Store{
	{StoreID: 1, StoreName: "QC Koregaon Park", Area: "Koregaon Park"},
	{StoreID: 2, StoreName: "QC Baner", Area: "Baner"},
	{StoreID: 3, StoreName: "QC Kothrud", Area: "Kothrud"},
	{StoreID: 4, StoreName: "QC Viman Nagar", Area: "Viman Nagar"},
	{StoreID: 5, StoreName: "QC Hadapsar", Area: "Hadapsar"},
}

type subCategory struct {
	category string
	name     string
	price    float64
}

var subCategories = []subCategory{
	{"Fruits & Vegetables", "Fresh Fruits", 80},
	{"Fruits & Vegetables", "Fresh Vegetables", 45},
	{"Dairy & Breakfast", "Milk", 35},
	{"Dairy & Breakfast", "Bread & Eggs", 60},
	{"Dairy & Breakfast", "Cereals", 240},
	{"Snacks & Munchies", "Chips & Namkeen", 40},
	{"Snacks & Munchies", "Biscuits", 30},
	{"Snacks & Munchies", "Chocolates", 420},
	{"Beverages", "Soft Drinks", 90},
	{"Beverages", "Tea & Coffee", 480},
	{"Personal Care", "Skin Care", 560},
	{"Home Care", "Detergents", 410},
}

var brands = map[string][]string{
	"Fruits & Vegetables": {"FreshFarm", "GreenLeaf", "Orchard Co"},
	"Dairy & Breakfast":   {"Amul", "Gowardhan", "Kellogg's"},
	"Snacks & Munchies":   {"Haldiram's", "Parle", "Cadbury"},
	"Beverages":           {"Tata", "Paper Boat", "Bru"},
	"Personal Care":       {"Nivea", "Himalaya", "Mamaearth"},
	"Home Care":           {"Surf Excel", "Tide", "Vim"},
}

var cancellationReasons = []string{
	"customer_changed_mind",
	"delivery_delay",
	"duplicate_order",
	"item_unavailable",
	"payment_failed",
}

const (
	productCount  = 36
	consumerCount = 300
	premiumPrice  = 400
)

// Generate builds the synthetic snapshot for seed. The same seed always
// produces the same fixture. Every tenth consumer is a heavy spender in
// November and half of those place nothing in December, so the churn
// segment is never empty.
func Generate(seed uint64) Fixture {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	fx := Fixture{
		Stores:   append([]Store(nil), stores...),
		Products: generateProducts(),
	}

	var premium []Product
	for _, p := range fx.Products {
		if p.UnitPrice >= premiumPrice {
			premium = append(premium, p)
		}
	}

	genders := []string{"Female", "Male", "Male", "Female", "Other"}

	for id := 1; id <= consumerCount; id++ {
		fx.Consumers = append(fx.Consumers, Consumer{
			ConsumerID:     id,
			Gender:         genders[rng.IntN(len(genders))],
			Age:            18 + rng.IntN(48),
			NearestStoreID: fx.Stores[rng.IntN(len(fx.Stores))].StoreID,
		})
	}

	g := generator{rng: rng, fx: &fx, premium: premium}

	for _, c := range fx.Consumers {
		heavy := c.ConsumerID%10 == 0
		churned := heavy && c.ConsumerID%20 == 0

		cohort := rng.IntN(4)
		if heavy {
			cohort = rng.IntN(3)
		}

		for month := cohort; month < 4; month++ {
			first := PeriodStart.AddDate(0, month, 0)

			switch {
			case heavy && month == 2:
				for range 4 {
					g.order(c, first, StatusDelivered, true)
				}
				continue

			case churned && month == 3:
				continue

			case month != cohort && rng.Float64() >= 0.6:
				continue
			}

			for range 1 + rng.IntN(3) {
				g.order(c, first, g.status(), false)
			}
		}
	}

	return fx
}

// =============================================================================

func generateProducts() []Product {
	products := make([]Product, 0, productCount)

	for i := range productCount {
		sc := subCategories[i%len(subCategories)]
		bs := brands[sc.category]
		brand := bs[(i/len(subCategories))%len(bs)]

		products = append(products, Product{
			ProductID:   101 + i,
			ProductName: fmt.Sprintf("%s %s", brand, sc.name),
			Category:    sc.category,
			SubCategory: sc.name,
			Brand:       brand,
			UnitPrice:   sc.price + float64((i*37)%50),
		})
	}

	return products
}

type generator struct {
	rng     *rand.Rand
	fx      *Fixture
	premium []Product
	orders  int
}

func (g *generator) status() string {
	switch r := g.rng.Float64(); {
	case r < 0.84:
		return StatusDelivered
	case r < 0.95:
		return StatusCancelled
	default:
		return StatusReturned
	}
}

func (g *generator) order(c Consumer, month time.Time, status string, heavy bool) {
	g.orders++
	orderID := fmt.Sprintf("ORD-%06d", g.orders)

	storeID := c.NearestStoreID
	if g.rng.Float64() < 0.2 {
		storeID = g.fx.Stores[g.rng.IntN(len(g.fx.Stores))].StoreID
	}

	days := month.AddDate(0, 1, -1).Day()
	placedAt := month.Add(time.Duration(g.rng.IntN(days))*24*time.Hour +
		time.Duration(g.rng.IntN(24))*time.Hour +
		time.Duration(g.rng.IntN(60))*time.Minute +
		time.Duration(g.rng.IntN(60))*time.Second)

	distance := round2(0.2 + g.rng.Float64()*7.3)

	var committed, actual int
	var reason string

	switch status {
	case StatusDelivered:
		committed = 900 + int(distance*240)
		actual = max(300, committed+g.rng.IntN(900)-480)

	case StatusCancelled:
		reason = cancellationReasons[g.rng.IntN(len(cancellationReasons))]
	}

	pool := g.fx.Products
	lines := 1 + g.rng.IntN(5)
	if heavy {
		pool = g.premium
		lines = 3 + g.rng.IntN(3)
	}

	picked := make(map[int]bool)

	for lineNo := 1; lineNo <= lines; lineNo++ {
		p := pool[g.rng.IntN(len(pool))]
		if picked[p.ProductID] {
			continue
		}
		picked[p.ProductID] = true

		qty := 1 + g.rng.IntN(3)
		if heavy {
			qty = 3 + g.rng.IntN(4)
		}

		gross := p.UnitPrice * float64(qty)

		var discount float64
		if g.rng.Float64() < 0.3 {
			discount = round2(gross * 0.1)
		}

		g.fx.Lines = append(g.fx.Lines, OrderLine{
			OrderID:               orderID,
			LineNo:                len(picked),
			ConsumerID:            c.ConsumerID,
			StoreID:               storeID,
			ProductID:             p.ProductID,
			OrderPlacedAt:         placedAt,
			OrderStatus:           status,
			Quantity:              qty,
			Discount:              discount,
			ItemTotal:             round2(gross - discount),
			CommittedDeliverySecs: committed,
			ActualDeliverySecs:    actual,
			DistanceKM:            distance,
			CancellationReason:    reason,
		})
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
