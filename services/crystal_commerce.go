package services

import (
	"context"
	"log"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"card-stock-tracker/domain"
)

// TemplateFamilyCrystalCommerce identifies storefronts built on the
// Crystal Commerce platform; they all share the same page template.
const TemplateFamilyCrystalCommerce = "crystal_commerce"

// CrystalCommerceStrategy scrapes any storefront in the crystal_commerce
// template family: a search page of product blocks, each with in-stock
// variant rows, plus a per-product detail page carrying the canonical set
// name and collector number.
type CrystalCommerceStrategy struct {
	fetcher PageFetcher
	sets    SetCodeLookup
}

func NewCrystalCommerceStrategy(fetcher PageFetcher, sets SetCodeLookup) *CrystalCommerceStrategy {
	return &CrystalCommerceStrategy{fetcher: fetcher, sets: sets}
}

type variantRow struct {
	condition string
	finish    string
	price     float64
	quantity  int
}

type productDetails struct {
	setCode         string
	collectorNumber string
}

func (s *CrystalCommerceStrategy) ScrapeListings(ctx context.Context, store domain.Store, cardName string) ([]domain.Listing, error) {
	params := url.Values{}
	params.Set("q", cardName)
	params.Set("c", "1")

	body, err := s.fetcher.FetchPage(ctx, store.SearchURL, params)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	var listings []domain.Listing
	seen := make(map[string]bool)

	for _, product := range findAll(doc, "li", "product") {
		scrapedName := strings.TrimSpace(attrVal(findFirst(product, "h4", "name"), "title"))
		scrapedName = strings.SplitN(scrapedName, " - ", 2)[0]

		// Results are relevance-ordered; the first non-matching name means
		// there are no more exact matches.
		if scrapedName == "" || !strings.EqualFold(scrapedName, cardName) {
			break
		}

		productPath := attrVal(findFirstWithAttr(product, "a", "itemprop", "url"), "href")
		productURL := resolveURL(store.Homepage, productPath)

		details := s.productDetails(ctx, store, productPath)

		for _, variant := range parseVariants(product) {
			listing := domain.Listing{
				StoreID:         store.Slug,
				CardName:        scrapedName,
				SetCode:         details.setCode,
				CollectorNumber: details.collectorNumber,
				Finish:          variant.finish,
				Price:           variant.price,
				StockCount:      variant.quantity,
				Condition:       variant.condition,
				URL:             productURL,
			}
			if !seen[listing.Identity()] {
				seen[listing.Identity()] = true
				listings = append(listings, listing)
			}
		}
	}

	return listings, nil
}

// productDetails fetches and parses a product detail page. Any failure
// leaves the static fields empty so sibling rows keep flowing.
func (s *CrystalCommerceStrategy) productDetails(ctx context.Context, store domain.Store, productPath string) productDetails {
	if productPath == "" {
		return productDetails{}
	}

	body, err := s.fetcher.FetchPage(ctx, resolveURL(store.Homepage, productPath), nil)
	if err != nil {
		log.Printf("failed to fetch product page %s at %s: %v", productPath, store.Slug, err)
		return productDetails{}
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		log.Printf("failed to parse product page %s at %s: %v", productPath, store.Slug, err)
		return productDetails{}
	}

	info := findFirst(doc, "div", "product-more-info")
	if info == nil {
		return productDetails{}
	}

	getDetail := func(class string) string {
		div := findFirst(info, "div", class)
		if div == nil {
			return ""
		}
		return nodeText(findFirst(div, "a", ""))
	}

	var details productDetails
	if setName := getDetail("set-name"); setName != "" {
		if code, ok := s.sets.SetCode(setName); ok {
			details.setCode = code
		}
	}
	if cardNumber := getDetail("card-number"); cardNumber != "" {
		details.collectorNumber = strings.TrimSpace(strings.SplitN(cardNumber, "/", 2)[0])
	}
	return details
}

// parseVariants extracts all in-stock variant rows from one product block.
// A malformed row is skipped; its siblings continue.
func parseVariants(product *html.Node) []variantRow {
	var variants []variantRow

	for _, row := range findAll(product, "div", "variant-row") {
		if !hasClass(row, "in-stock") {
			continue
		}

		description := nodeText(findFirst(row, "", "variant-description"))
		qtyText := nodeText(findFirst(row, "", "variant-qty"))
		if description == "" || qtyText == "" {
			continue
		}

		condition := strings.TrimSpace(strings.SplitN(description, ",", 2)[0])
		finish := "non-foil"
		if strings.Contains(strings.ToLower(description), "foil") {
			finish = "foil"
		}

		// The add-to-cart form's data attribute is authoritative; the
		// rendered price text is a fallback.
		priceText := attrVal(findFirst(row, "form", "add-to-cart-form"), "data-price")
		if priceText == "" {
			priceText = nodeText(findFirst(row, "", "price"))
		}
		price, err := parsePrice(priceText)
		if err != nil {
			continue
		}

		quantity, err := strconv.Atoi(strings.Fields(qtyText)[0])
		if err != nil {
			continue
		}

		variants = append(variants, variantRow{
			condition: condition,
			finish:    finish,
			price:     price,
			quantity:  quantity,
		})
	}

	return variants
}

func parsePrice(text string) (float64, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	return strconv.ParseFloat(cleaned, 64)
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
