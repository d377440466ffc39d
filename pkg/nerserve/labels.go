// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nerserve

import "strings"

// PIILabels is the candidate entity-type vocabulary passed to the
// extractor on every detection call.
var PIILabels = []string{
	"person", "organization", "phone number", "address", "passport number",
	"email", "credit card number", "social security number",
	"health insurance id number", "date of birth", "mobile phone number",
	"bank account number", "medication", "cpf", "driver's license number",
	"tax identification number", "medical condition", "identity card number",
	"national id number", "ip address", "email address", "iban",
	"credit card expiration date", "username", "health insurance number",
	"registration number", "student id number", "insurance number",
	"flight number", "landline phone number", "blood type", "cvv",
	"reservation number", "digital signature", "social media handle",
	"license plate number", "cnpj", "postal code", "serial number",
	"vehicle registration number", "credit card brand", "fax number",
	"visa number", "insurance company", "identity document number",
	"transaction number", "national health insurance number", "cvc",
	"birth certificate number", "train ticket number", "passport expiration date",
}

// canonicalTypes maps normalized model labels to the short entity types
// downstream consumers expect.
var canonicalTypes = map[string]string{
	"PERSON":                 "PER",
	"PERSON_NAME":            "PER",
	"ORGANIZATION":           "ORG",
	"PHONE_NUMBER":           "PHONE",
	"MOBILE_PHONE_NUMBER":    "PHONE",
	"LANDLINE_PHONE_NUMBER":  "PHONE",
	"EMAIL":                  "EMAIL",
	"EMAIL_ADDRESS":          "EMAIL",
	"SOCIAL_SECURITY_NUMBER": "SSN",
	"CREDIT_CARD_NUMBER":     "CREDIT_CARD",
	"PASSPORT_NUMBER":        "PASSPORT",
	"DRIVERS_LICENSE_NUMBER": "DRIVERS_LICENSE",
	"BANK_ACCOUNT_NUMBER":    "BANK_ACCOUNT",
	"NATIONAL_ID_NUMBER":     "NATIONAL_ID",
	"IDENTITY_CARD_NUMBER":   "ID_CARD",
}

// CanonicalType normalizes a raw model label to its canonical entity type.
// Labels are uppercased with spaces replaced by underscores; known synonyms
// collapse to their short form, anything else passes through normalized.
// Idempotent: canonical outputs map to themselves.
func CanonicalType(label string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(label, " ", "_"))
	if mapped, ok := canonicalTypes[normalized]; ok {
		return mapped
	}
	return normalized
}
