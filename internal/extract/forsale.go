package extract

import "malmohomes/collector/internal/models"

// mapForSale fills the fields of an active listing. Days on market is derived
// later from the listing date.
func mapForSale(r *fieldReader, p *models.Property) {
	p.AskingPrice = r.integer64(FieldAskingPrice)
	p.ListedDate = r.date(FieldListedDate)
	p.VisitCount = r.integer(FieldVisitCount)
	p.ViewingTimes = r.viewings(FieldViewings)
}
