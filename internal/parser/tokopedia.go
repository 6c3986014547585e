package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/reikki7/tokopedia-products-scraper/internal/models"
)

const baseURL = "https://www.tokopedia.com"

// Card container strategies, most specific first. The first selector that
// yields at least one card wins.
var cardSelectors = selectorChain{
	"[data-testid='spnSRP - Product Card']",
	".css-bk6tzz",
	"[data-testid='divSRPContentProducts'] > div > div",
	".css-1sn1xa2",
	".pcv3_product_content",
	".css-5wh65g",
}

var (
	titleSelectors = selectorChain{
		"[data-testid='spnSRPProdName']",
		"span[class*='_0T8-iGxMpV6NEsYEhwkqEg']",
		".css-3um8ox",
	}
	finalPriceSelectors = selectorChain{
		"[data-testid='spnSRPProdPrice']",
		"div[class*='_67d6E1xDKIzw']",
		".css-h66vau",
	}
	originalPriceSelectors = selectorChain{
		"span[class*='q6wH9']",
		"div[class*='q6wH9']",
		"div[class*='strike']",
	}
	discountSelectors = selectorChain{
		"span[class*='vRrrC5GSv6FRRkbCqM7QcQ']",
		"div[class*='rpRIligrl1WcKourBjzy9g'] span",
	}
	imageSelectors = selectorChain{
		"img[alt='product-image']",
		"img[src*='tokopedia.net']",
		"img",
	}
	ratingSelectors = selectorChain{
		"span[class*='_9jWGz3C-GX7Myq']",
		"[data-testid='icnSRPRating'] + span",
	}
	soldCountSelectors = selectorChain{
		"span[class*='se8WAnkjbVXZNA8mT']",
	}
	sellerBlockSelectors = selectorChain{
		"div[class*='Jh7geoVa-F3B5Hk8ORh2qw']",
	}

	pdpPriceSelectors = selectorChain{
		"p[data-testid='pdpProductPrice']",
		"[class*='css-brw1im']",
	}
	pdpSlashPriceSelectors = selectorChain{
		"p[data-testid='pdpSlashPrice'] del",
		"del[data-testid='pdpSlashPrice']",
		"[class*='css-14nwhqu'] del",
	}
	pdpDiscountSelectors = selectorChain{
		"span[data-testid='lblPDPDetailDiscountPercentage']",
		"[class*='css-1d9srnq']",
	}
)

var (
	pilihRe       = regexp.MustCompile(`(?i)pilih\s+(.+?):`)
	digitsRe      = regexp.MustCompile(`\d+`)
	bintangRe     = regexp.MustCompile(`bintang\s*(\d+)`)
	nonAlnumRe    = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	brTagRe       = regexp.MustCompile(`(?i)<br\s*/?>`)
	slashPrefixRe = regexp.MustCompile(`(?i)harga sebelum diskon\s*`)
)

// TokopediaParser extracts Tokopedia search, product and review data from
// rendered HTML snapshots.
type TokopediaParser struct{}

func NewTokopediaParser() *TokopediaParser {
	return &TokopediaParser{}
}

func (p *TokopediaParser) ParseSearchCards(html string) ([]models.BasicProduct, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, ""
	}

	for _, sel := range cardSelectors {
		cards := doc.Find(sel)
		if cards.Length() == 0 {
			continue
		}

		products := make([]models.BasicProduct, 0, cards.Length())
		cards.Each(func(_ int, card *goquery.Selection) {
			products = append(products, p.extractCard(card))
		})
		return products, sel
	}

	return nil, ""
}

func (p *TokopediaParser) extractCard(card *goquery.Selection) models.BasicProduct {
	product := models.BasicProduct{
		SellerName: "N/A",
		Location:   "N/A",
	}

	// Titles shorter than a handful of characters are badge artifacts, not
	// product names.
	if title, ok := firstText(card, titleSelectors, func(t string) bool {
		return len(t) > 5
	}); ok {
		product.Title = title
	}

	if txt, ok := firstText(card, finalPriceSelectors, containsRupiah); ok {
		product.DisplayedPriceFinal = CleanPrice(txt)
	}
	if txt, ok := firstText(card, originalPriceSelectors, containsRupiah); ok {
		product.DisplayedPriceOriginal = CleanPrice(txt)
	}

	if txt, ok := firstText(card, discountSelectors, func(t string) bool {
		return strings.Contains(t, "%")
	}); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(txt, "%"))); err == nil {
			product.Discount = n
		}
	}

	product.ImageURL = firstImageURL(card, imageSelectors)

	for _, sel := range sellerBlockSelectors {
		block := card.Find(sel).First()
		if block.Length() == 0 {
			continue
		}
		chunks := textChunks(block)
		if len(chunks) > 0 {
			product.SellerName = chunks[0]
		}
		if len(chunks) > 1 {
			product.Location = chunks[1]
		}
		break
	}

	if txt, ok := firstText(card, ratingSelectors, nil); ok {
		if rating := CleanRating(txt); rating > 0 {
			product.ProductRating = &rating
		}
	}

	if txt, ok := firstText(card, soldCountSelectors, nil); ok {
		if sold := CleanSoldCount(txt); sold != "" {
			product.SoldCount = &sold
		}
	}

	if href := card.Find("a").First().AttrOr("href", ""); href != "" {
		if !strings.HasPrefix(href, "http") {
			href = baseURL + href
		}
		product.ProductURL = href
	}

	return product
}

func (p *TokopediaParser) SearchLabel(html, currentURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		raw := strings.TrimSpace(doc.Find("[data-testid='dSRPSearchInfo'] strong").First().Text())
		raw = strings.Trim(raw, `"`)
		if cleaned := cleanLabel(raw); cleaned != "" {
			return cleaned
		}
	}

	if u, err := url.Parse(currentURL); err == nil {
		return cleanLabel(u.Query().Get("q"))
	}
	return ""
}

func cleanLabel(raw string) string {
	return titleCase(strings.TrimSpace(nonAlnumRe.ReplaceAllString(raw, "")))
}

func (p *TokopediaParser) ActiveFilters(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var filters []string
	doc.Find("button[data-unify='Chip']").Each(func(_ int, chip *goquery.Selection) {
		text := strings.TrimSpace(chip.Text())
		if text != "" && text != "×" && text != "x" {
			filters = append(filters, text)
		}
	})
	return filters
}

func (p *TokopediaParser) ParseProductInfo(html string) *ProductInfo {
	info := &ProductInfo{
		Collection:   make([]models.CollectionLink, 0),
		DetailImages: make([]models.ImageSet, 0),
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return info
	}

	if raw, err := doc.Find("div[data-testid='lblPDPDescriptionProduk']").First().Html(); err == nil {
		info.Description = htmlToText(raw)
	}

	ratingText := strings.TrimSpace(doc.Find("div[class*='css-b6ktge'] p[class*='css-1gvq2cb']").First().Text())
	if fields := strings.Fields(ratingText); len(fields) > 0 {
		info.SellerRating = CleanRating(fields[0])
	}

	doc.Find("ul[data-testid='lblPDPInfoProduk'] li").Each(func(_ int, li *goquery.Selection) {
		spans := li.Find("span")
		if spans.Length() >= 2 {
			label := strings.ToLower(strings.TrimSpace(spans.Eq(0).Text()))
			value := strings.TrimSpace(spans.Eq(1).Text())
			switch {
			case strings.Contains(label, "kondisi"):
				info.Condition = value
			case strings.Contains(label, "min. pemesanan"):
				if m := digitsRe.FindString(value); m != "" {
					info.MinOrder, _ = strconv.Atoi(m)
				}
			}
		}

		if strings.Contains(strings.ToLower(li.Text()), "etalase") {
			link := li.Find("a").First()
			text := strings.TrimSpace(link.Find("b").First().Text())
			if text != "" {
				info.Collection = append(info.Collection, models.CollectionLink{
					Text: text,
					URL:  link.AttrOr("href", ""),
				})
			}
		}
	})

	var thumbnails, previews []string
	doc.Find("button[data-testid='PDPImageThumbnail'] img").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if !strings.Contains(src, "http") || strings.HasPrefix(src, "data:image/svg") {
			return
		}
		thumbnails = append(thumbnails, src)
		previews = append(previews, strings.Replace(src, "/cache/200/", "/cache/500-square/", 1))
	})
	if len(thumbnails) > 0 {
		info.DetailImages = append(info.DetailImages, models.ImageSet{
			Thumbnail: thumbnails,
			Preview:   previews,
		})
	}

	doc.Find("h2").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if !strings.Contains(h.Text(), "Dikirim dari") {
			return true
		}
		info.DeliveryOrigin = strings.TrimSpace(h.Find("b").First().Text())
		return false
	})

	return info
}

func (p *TokopediaParser) ParseVariantDimensions(html string) []models.VariantDimension {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var dims []models.VariantDimension
	doc.Find("p[data-testid^='pdpVariantTitle#']").Each(func(_ int, header *goquery.Selection) {
		m := pilihRe.FindStringSubmatch(header.Text())
		if m == nil {
			return
		}
		name := strings.ToLower(strings.TrimSpace(m[1]))

		var options []string
		optionContainer(header).Find("button").Each(func(_ int, btn *goquery.Selection) {
			if text := buttonLabel(btn); text != "" {
				options = append(options, text)
			}
		})
		if len(options) > 0 {
			dims = append(dims, models.VariantDimension{Name: name, Options: options})
		}
	})
	return dims
}

func (p *TokopediaParser) AvailableOptions(html, dimension string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	want := "pilih " + strings.ToLower(dimension)
	var available []string
	doc.Find("p[data-testid^='pdpVariantTitle#']").EachWithBreak(func(_ int, header *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(header.Text()), want) {
			return true
		}

		enabled := optionContainer(header).Find(
			"div[data-testid='btnVariantChipActive'] button, div[data-testid='btnVariantChipActiveSelected'] button")
		enabled.Each(func(_ int, btn *goquery.Selection) {
			text := buttonLabel(btn)
			if text != "" && !strings.HasPrefix(text, "http") {
				available = append(available, text)
			}
		})
		return false
	})
	return available
}

func (p *TokopediaParser) ParseVariantState(html string) (*VariantState, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	state := &VariantState{}

	root := doc.Selection
	priceText, ok := firstText(root, pdpPriceSelectors, containsRupiah)
	if !ok {
		return nil, fmt.Errorf("product price not found")
	}
	if strings.Contains(priceText, "-") {
		// A price range means no concrete combination is selected.
		state.PriceIsRange = true
	} else {
		state.FinalPrice = CleanPrice(priceText)
	}

	stockText := strings.TrimSpace(doc.Find("p[data-testid='stock-label']").First().Text())
	if stockText != "" {
		if strings.Contains(strings.ToLower(stockText), "habis") {
			state.OutOfStock = true
		} else if m := digitsRe.FindString(stockText); m != "" {
			state.Stock, _ = strconv.Atoi(m)
		}
	}

	if txt, ok := firstText(root, pdpSlashPriceSelectors, containsRupiah); ok {
		state.OriginalPrice = CleanPrice(slashPrefixRe.ReplaceAllString(txt, ""))
	}
	if state.OriginalPrice == 0 {
		state.OriginalPrice = state.FinalPrice
	}

	if txt, ok := firstText(root, pdpDiscountSelectors, func(t string) bool {
		return strings.Contains(t, "%")
	}); ok {
		cleaned := strings.TrimSpace(strings.TrimSuffix(txt, "%"))
		if v, err := strconv.ParseFloat(strings.Replace(cleaned, ",", ".", 1), 64); err == nil {
			state.PageDiscount = v
		}
	}

	return state, nil
}

func (p *TokopediaParser) ParseReviews(html string) []models.Review {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var reviews []models.Review
	doc.Find("article[class*='css-15m2bcr']").Each(func(_ int, article *goquery.Selection) {
		review := models.Review{}

		if name := strings.TrimSpace(article.Find("span.name").First().Text()); name != "" {
			review.UserName = &name
		}

		if raw := article.Find("p[data-testid='lblVarian']").First().Text(); raw != "" {
			variant := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Varian:"))
			review.Variant = &variant
		}

		if ago := strings.TrimSpace(article.Find("p[class*='css-vqrjg4']").First().Text()); ago != "" {
			review.TimeAgo = &ago
		}

		aria := article.Find("div[data-testid='icnStarRating']").First().AttrOr("aria-label", "")
		if m := bintangRe.FindStringSubmatch(strings.ToLower(aria)); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				review.Rating = &v
			}
		}

		if raw, err := article.Find("span[data-testid='lblItemUlasan']").First().Html(); err == nil {
			review.Text = htmlToText(raw)
		}

		if src := article.Find("img[data-testid='imgItemPhotoulasan']").First().AttrOr("src", ""); src != "" {
			review.ImageURL = &src
		}

		reviews = append(reviews, review)
	})
	return reviews
}

// optionContainer finds the chip container that follows a variant header.
func optionContainer(header *goquery.Selection) *goquery.Selection {
	return header.NextAllFiltered("div.css-hayuji").First()
}

// buttonLabel returns the first text line of a variant chip, dropping badge
// lines that Tokopedia stacks below the option name.
func buttonLabel(btn *goquery.Selection) string {
	text := strings.TrimSpace(btn.Text())
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return text
}

// firstText walks a selector chain and returns the first non-empty text that
// passes ok.
func firstText(s *goquery.Selection, chain selectorChain, ok func(string) bool) (string, bool) {
	for _, sel := range chain {
		found := s.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(found.Text())
		if text == "" {
			continue
		}
		if ok == nil || ok(text) {
			return text, true
		}
	}
	return "", false
}

func firstImageURL(s *goquery.Selection, chain selectorChain) string {
	for _, sel := range chain {
		img := s.Find(sel).First()
		if img.Length() == 0 {
			continue
		}
		for _, attr := range []string{"src", "data-src"} {
			if candidate := img.AttrOr(attr, ""); strings.Contains(candidate, "http") {
				return candidate
			}
		}
	}
	return ""
}

func textChunks(s *goquery.Selection) []string {
	var chunks []string
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			if t := strings.TrimSpace(c.Text()); t != "" {
				chunks = append(chunks, t)
			}
			return
		}
		chunks = append(chunks, textChunks(c)...)
	})
	return chunks
}

func containsRupiah(text string) bool {
	return strings.Contains(text, "Rp")
}

// CleanPrice converts "Rp1.234.567" to 1234567. Returns 0 when the text does
// not carry a rupiah amount.
func CleanPrice(text string) int {
	if !strings.Contains(text, "Rp") {
		return 0
	}
	cleaned := strings.NewReplacer("Rp", "", ".", "", ",", "", " ", "", "\u00a0", "").Replace(text)
	n, err := strconv.Atoi(strings.TrimSpace(cleaned))
	if err != nil {
		return 0
	}
	return n
}

// CleanRating converts a comma-decimal rating like "4,5" to 4.5.
func CleanRating(text string) float64 {
	v, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(text), ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	return v
}

// CleanSoldCount strips the "terjual" suffix, keeping the count as displayed
// ("100+", "1 rb").
func CleanSoldCount(text string) string {
	cleaned := strings.NewReplacer("terjual", "", "Terjual", "").Replace(text)
	return strings.TrimSpace(cleaned)
}

// htmlToText flattens an HTML fragment to text, preserving <br> line breaks.
func htmlToText(rawHTML string) string {
	replaced := brTagRe.ReplaceAllString(rawHTML, "\n")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(replaced))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
