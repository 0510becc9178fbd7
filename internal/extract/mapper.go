package extract

import "malmohomes/collector/internal/models"

// mapCommon fills the fields shared by both listing kinds.
func mapCommon(r *fieldReader, p *models.Property) {
	p.Address = r.text(FieldAddress)
	p.Neighborhood = r.text(FieldNeighborhood)

	p.HousingForm = r.text(FieldHousingForm)
	p.Tenure = r.text(FieldTenure)
	p.Rooms = r.float(FieldRooms)
	p.LivingArea = r.float(FieldLivingArea)
	p.LotArea = r.float(FieldLotArea)
	p.Floor = r.display(FieldFloor)
	p.Elevator = r.flag(FieldElevator)
	p.Balcony = r.flag(FieldBalcony)
	p.BuildingYear = r.integer(FieldBuildingYear)
	p.EnergyClass = r.text(FieldEnergyClass)

	p.AssociationName = r.text(FieldAssociationName)
	p.AssociationFee = r.integer64(FieldAssociationFee)
	p.OperatingCost = r.integer64(FieldOperatingCost)

	p.Description = r.text(FieldDescription)
}
