package models

import (
	"encoding/json"
	"fmt"
)

// ItemDetails is the type-specific payload of an inventory item. Exactly one
// concrete variant exists per ItemType; the pair is stored as (item_type,
// attributes JSONB) and decoded through DecodeItemDetails.
type ItemDetails interface {
	DetailsType() ItemType
}

// MedicationDetails covers pharmaceuticals (drops, ointments, tablets).
type MedicationDetails struct {
	GenericName string `json:"generic_name,omitempty"`
	DosageForm  string `json:"dosage_form,omitempty"` // drops, ointment, tablet, injection
	Strength    string `json:"strength,omitempty"`
	Route       string `json:"route,omitempty"`
	Controlled  bool   `json:"controlled,omitempty"`
}

func (MedicationDetails) DetailsType() ItemType { return ItemTypeMedication }

// FrameDetails covers spectacle frames.
type FrameDetails struct {
	Brand    string `json:"brand,omitempty"`
	Model    string `json:"model,omitempty"`
	Color    string `json:"color,omitempty"`
	Material string `json:"material,omitempty"`
	Size     string `json:"size,omitempty"` // eye-bridge-temple, e.g. 52-18-140
}

func (FrameDetails) DetailsType() ItemType { return ItemTypeFrame }

// ContactLensDetails covers contact lenses.
type ContactLensDetails struct {
	Brand        string  `json:"brand,omitempty"`
	BaseCurve    float64 `json:"base_curve,omitempty"`
	Diameter     float64 `json:"diameter,omitempty"`
	Power        float64 `json:"power,omitempty"`
	Material     string  `json:"material,omitempty"`
	WearSchedule string  `json:"wear_schedule,omitempty"` // daily, biweekly, monthly
}

func (ContactLensDetails) DetailsType() ItemType { return ItemTypeContactLens }

// OpticalLensDetails covers uncut and stock optical lenses.
type OpticalLensDetails struct {
	LensType string  `json:"lens_type,omitempty"` // single_vision, bifocal, progressive
	Material string  `json:"material,omitempty"`
	Index    float64 `json:"index,omitempty"`
	Coating  string  `json:"coating,omitempty"`
	Diameter float64 `json:"diameter,omitempty"`
}

func (OpticalLensDetails) DetailsType() ItemType { return ItemTypeOpticalLens }

// ReagentDetails covers laboratory reagents.
type ReagentDetails struct {
	Assay       string `json:"assay,omitempty"`
	Grade       string `json:"grade,omitempty"`
	StorageTemp string `json:"storage_temp,omitempty"`
}

func (ReagentDetails) DetailsType() ItemType { return ItemTypeReagent }

// ConsumableDetails covers general clinic consumables.
type ConsumableDetails struct {
	Category      string `json:"category,omitempty"`
	UnitOfMeasure string `json:"unit_of_measure,omitempty"`
}

func (ConsumableDetails) DetailsType() ItemType { return ItemTypeConsumable }

// SurgicalSupplyDetails covers surgical packs, IOLs and theatre supplies.
type SurgicalSupplyDetails struct {
	Category string `json:"category,omitempty"`
	Sterile  bool   `json:"sterile,omitempty"`
	SizeSpec string `json:"size_spec,omitempty"`
}

func (SurgicalSupplyDetails) DetailsType() ItemType { return ItemTypeSurgicalSupply }

// DecodeItemDetails unmarshals the JSONB attributes column into the concrete
// variant selected by the item type tag. A nil or empty payload yields the
// zero value of the variant so callers never see a nil Details on a valid item.
func DecodeItemDetails(t ItemType, raw []byte) (ItemDetails, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		details ItemDetails
		err     error
	)
	switch t {
	case ItemTypeMedication:
		var d MedicationDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case ItemTypeFrame:
		var d FrameDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case ItemTypeContactLens:
		var d ContactLensDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case ItemTypeOpticalLens:
		var d OpticalLensDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case ItemTypeReagent:
		var d ReagentDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case ItemTypeConsumable:
		var d ConsumableDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case ItemTypeSurgicalSupply:
		var d SurgicalSupplyDetails
		err = json.Unmarshal(raw, &d)
		details = d
	default:
		return nil, fmt.Errorf("unknown item type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s details: %w", t, err)
	}
	return details, nil
}

// EncodeItemDetails marshals a details variant for the attributes column.
// A nil details encodes as an empty object.
func EncodeItemDetails(details ItemDetails) ([]byte, error) {
	if details == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(details)
}
