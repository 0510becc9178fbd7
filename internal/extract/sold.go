package extract

import "malmohomes/collector/internal/models"

// mapSold fills the fields only a completed sale carries.
func mapSold(r *fieldReader, p *models.Property) {
	p.AskingPrice = r.integer64(FieldAskingPrice)
	p.FinalPrice = r.integer64(FieldFinalPrice)
	p.SoldDate = r.date(FieldSoldDate)
	p.VisitCount = r.integer(FieldVisitCount)
	p.DaysOnMarket = r.integer(FieldDaysOnMarket)
}
