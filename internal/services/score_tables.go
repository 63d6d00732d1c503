package services

// TScoreEntry is one row of a raw-score conversion table.
type TScoreEntry struct {
	TScore        float64
	StandardError float64
}

// promisAdultDepression8a maps the PROMIS Depression 8a raw sum (8 items, 1..5) to T-scores
// for adult respondents.
var promisAdultDepression8a = map[int]TScoreEntry{
	8:  {38.2, 5.7},
	9:  {44.7, 3.3},
	10: {47.5, 2.7},
	11: {49.4, 2.3},
	12: {50.9, 2.0},
	13: {52.1, 1.9},
	14: {53.2, 1.8},
	15: {54.1, 1.8},
	16: {55.1, 1.7},
	17: {55.9, 1.7},
	18: {56.8, 1.7},
	19: {57.7, 1.7},
	20: {58.5, 1.7},
	21: {59.4, 1.7},
	22: {60.3, 1.7},
	23: {61.2, 1.7},
	24: {62.1, 1.7},
	25: {63.0, 1.7},
	26: {63.9, 1.7},
	27: {64.9, 1.7},
	28: {65.8, 1.7},
	29: {66.8, 1.7},
	30: {67.7, 1.7},
	31: {68.7, 1.7},
	32: {69.7, 1.7},
	33: {70.7, 1.7},
	34: {71.7, 1.7},
	35: {72.8, 1.7},
	36: {73.9, 1.7},
	37: {75.0, 1.8},
	38: {76.4, 2.0},
	39: {78.2, 2.4},
	40: {81.3, 3.4},
}

// promisPediatricDepression8a maps the same raw domain for respondents under 18.
var promisPediatricDepression8a = map[int]TScoreEntry{
	8:  {36.7, 6.0},
	9:  {42.1, 4.1},
	10: {45.0, 3.5},
	11: {47.3, 3.2},
	12: {49.2, 3.0},
	13: {50.9, 2.9},
	14: {52.4, 2.8},
	15: {53.8, 2.7},
	16: {55.1, 2.7},
	17: {56.4, 2.6},
	18: {57.6, 2.6},
	19: {58.7, 2.6},
	20: {59.8, 2.6},
	21: {60.9, 2.6},
	22: {62.0, 2.6},
	23: {63.0, 2.6},
	24: {64.1, 2.6},
	25: {65.1, 2.6},
	26: {66.2, 2.6},
	27: {67.2, 2.6},
	28: {68.3, 2.6},
	29: {69.4, 2.6},
	30: {70.5, 2.7},
	31: {71.7, 2.7},
	32: {72.9, 2.7},
	33: {74.1, 2.8},
	34: {75.4, 2.9},
	35: {76.8, 3.0},
	36: {78.3, 3.1},
	37: {79.9, 3.3},
	38: {81.7, 3.6},
	39: {83.8, 4.0},
	40: {86.5, 4.6},
}

// phq9Linking holds the PROMIS depression T-score equivalent of each PHQ-9 total.
// Index is the PHQ-9 score.
var phq9Linking = [28]float64{
	37.4, 42.7, 45.9, 48.1, 49.9, 51.5, 52.9, 54.2, 55.5, 56.6,
	57.7, 58.8, 59.9, 60.9, 62.0, 63.0, 64.1, 65.1, 66.2, 67.3,
	68.4, 69.5, 70.7, 71.9, 73.2, 74.5, 75.9, 77.5,
}
