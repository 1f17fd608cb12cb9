package ml

// Wire and feature names. Encoded fields keep the wire name of their source column.
const (
	FieldGender        = "Gender"
	FieldAge           = "Age"
	FieldHeight        = "Height"
	FieldWeight        = "Weight"
	FieldFamilyHistory = "family_history_with_overweight"
	FieldFAVC          = "FAVC"
	FieldFCVC          = "FCVC"
	FieldNCP           = "NCP"
	FieldCAEC          = "CAEC"
	FieldSMOKE         = "SMOKE"
	FieldCH2O          = "CH2O"
	FieldSCC           = "SCC"
	FieldFAF           = "FAF"
	FieldTUE           = "TUE"
	FieldCALC          = "CALC"
	FieldMTRANS        = "MTRANS"

	FieldHeightCM    = "Height_cm"
	FieldAgeCat      = "Age_cat"
	FieldHeightCMCat = "Height_cm_cat"
	FieldWeightCat   = "Weight_cat"
)

// RawRecord is a validated request record.
type RawRecord struct {
	Gender                  string
	Age                     float64
	Height                  float64
	Weight                  float64
	FamilyHistoryOverweight string
	FrequentHighCalorieFood string
	VegetableFrequency      float64
	MainMealsCount          float64
	SnackingFrequency       string
	Smokes                  string
	WaterIntake             float64
	MonitorsCalories        string
	PhysicalActivity        float64
	TechUsageTime           float64
	AlcoholFrequency        string
	TransportMode           string
}

// RecordInput is the wire shape of a prediction request. Pointer fields let the
// validator tell a missing field apart from a zero value.
type RecordInput struct {
	Gender                  *string  `json:"Gender" validate:"required,oneof=Male Female"`
	Age                     *float64 `json:"Age" validate:"required,gte=0,lte=120"`
	Height                  *float64 `json:"Height" validate:"required,gt=0,lte=3"`
	Weight                  *float64 `json:"Weight" validate:"required,gt=0,lte=300"`
	FamilyHistoryOverweight *string  `json:"family_history_with_overweight" validate:"required,oneof=yes no"`
	FrequentHighCalorieFood *string  `json:"FAVC" validate:"required,oneof=yes no"`
	VegetableFrequency      *float64 `json:"FCVC" validate:"required,gte=1,lte=3"`
	MainMealsCount          *float64 `json:"NCP" validate:"required,gte=1,lte=4"`
	SnackingFrequency       *string  `json:"CAEC" validate:"required,oneof=no Sometimes Frequently Always"`
	Smokes                  *string  `json:"SMOKE" validate:"required,oneof=yes no"`
	WaterIntake             *float64 `json:"CH2O" validate:"required,gte=1,lte=3"`
	MonitorsCalories        *string  `json:"SCC" validate:"required,oneof=yes no"`
	PhysicalActivity        *float64 `json:"FAF" validate:"required,gte=0,lte=3"`
	TechUsageTime           *float64 `json:"TUE" validate:"required,gte=0,lte=2"`
	AlcoholFrequency        *string  `json:"CALC" validate:"required,oneof=no Sometimes Frequently Always"`
	TransportMode           *string  `json:"MTRANS" validate:"required,oneof=Public_Transportation Automobile Walking Motorbike Bike"`
}

// Input converts a record back to its wire shape.
func (r RawRecord) Input() RecordInput {
	return RecordInput{
		Gender:                  &r.Gender,
		Age:                     &r.Age,
		Height:                  &r.Height,
		Weight:                  &r.Weight,
		FamilyHistoryOverweight: &r.FamilyHistoryOverweight,
		FrequentHighCalorieFood: &r.FrequentHighCalorieFood,
		VegetableFrequency:      &r.VegetableFrequency,
		MainMealsCount:          &r.MainMealsCount,
		SnackingFrequency:       &r.SnackingFrequency,
		Smokes:                  &r.Smokes,
		WaterIntake:             &r.WaterIntake,
		MonitorsCalories:        &r.MonitorsCalories,
		PhysicalActivity:        &r.PhysicalActivity,
		TechUsageTime:           &r.TechUsageTime,
		AlcoholFrequency:        &r.AlcoholFrequency,
		TransportMode:           &r.TransportMode,
	}
}

// SampleRecord is the example request served by the original client documentation.
func SampleRecord() RawRecord {
	return RawRecord{
		Gender:                  "Male",
		Age:                     25,
		Height:                  1.75,
		Weight:                  75,
		FamilyHistoryOverweight: "no",
		FrequentHighCalorieFood: "no",
		VegetableFrequency:      2,
		MainMealsCount:          3,
		SnackingFrequency:       "Sometimes",
		Smokes:                  "no",
		WaterIntake:             2,
		MonitorsCalories:        "no",
		PhysicalActivity:        1,
		TechUsageTime:           1,
		AlcoholFrequency:        "Sometimes",
		TransportMode:           "Public_Transportation",
	}
}

// frame is the working set of columns the encoding stages read and write.
type frame struct {
	numeric     map[string]float64
	categorical map[string]string
}

func (r RawRecord) frame() *frame {
	return &frame{
		numeric: map[string]float64{
			FieldAge:    r.Age,
			FieldHeight: r.Height,
			FieldWeight: r.Weight,
			FieldFCVC:   r.VegetableFrequency,
			FieldNCP:    r.MainMealsCount,
			FieldCH2O:   r.WaterIntake,
			FieldFAF:    r.PhysicalActivity,
			FieldTUE:    r.TechUsageTime,
		},
		categorical: map[string]string{
			FieldGender:        r.Gender,
			FieldFamilyHistory: r.FamilyHistoryOverweight,
			FieldFAVC:          r.FrequentHighCalorieFood,
			FieldCAEC:          r.SnackingFrequency,
			FieldSMOKE:         r.Smokes,
			FieldSCC:           r.MonitorsCalories,
			FieldCALC:          r.AlcoholFrequency,
			FieldMTRANS:        r.TransportMode,
		},
	}
}
