package model

type Vehicle struct {
	ID             string
	CustomerID     string
	Make           string
	Model          string
	Year           int
	LicensePlate   string
	VIN            string
	CurrentMileage int
}
