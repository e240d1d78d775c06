package translator

import "strconv"

// weatherCodeMap converts provider icon codes to the small integer weather
// codes the widget parsers were compiled against. Contiguous ranges per
// category: clear/cloud (100s), rain (300s), snow (400s), fog (500s),
// wind (600s), haze (700s), sand (800s). Codes absent from the table render
// as "0".
var weatherCodeMap = map[string]string{
	"100": "0",
	"101": "1",
	"102": "2",
	"103": "3",
	"104": "4",
	"150": "5",
	"151": "6",
	"152": "7",
	"300": "8",
	"301": "9",
	"302": "10",
	"303": "11",
	"304": "12",
	"305": "13",
	"306": "14",
	"307": "15",
	"308": "16",
	"309": "17",
	"310": "18",
	"311": "19",
	"312": "20",
	"313": "21",
	"314": "22",
	"315": "23",
	"316": "24",
	"317": "25",
	"318": "26",
	"400": "27",
	"401": "28",
	"402": "29",
	"403": "30",
	"404": "31",
	"405": "32",
	"406": "33",
	"407": "34",
	"500": "35",
	"501": "36",
	"502": "37",
	"503": "38",
	"504": "39",
	"507": "40",
	"508": "41",
	"600": "42",
	"601": "43",
	"602": "44",
	"700": "45",
	"701": "46",
	"702": "47",
	"703": "48",
	"704": "49",
	"705": "50",
	"706": "51",
	"707": "52",
	"708": "53",
	"800": "54",
	"801": "55",
	"802": "56",
	"803": "57",
	"804": "58",
}

// windDirMap converts Chinese compass terms to the legacy numeric codes.
var windDirMap = map[string]string{
	"无":   "0",
	"无风向": "0",
	"东北风": "1",
	"东风":  "2",
	"东南风": "3",
	"南风":  "4",
	"西南风": "5",
	"西风":  "6",
	"西北风": "7",
	"北风":  "8",
	"旋风":  "9",
}

// indexCategoryMap converts index category text to the Val attribute.
var indexCategoryMap = map[string]string{
	"舒适":  "1",
	"适宜":  "1",
	"较适宜": "2",
	"较不宜": "3",
	"不宜":  "4",
}

// indexTypeMap converts index type names to the short codes the TV parser
// switches on. Unmapped names pass through unchanged.
var indexTypeMap = map[string]string{
	"穿衣":  "CY",
	"感冒":  "GM",
	"洗车":  "XC",
	"紫外线": "ZWX",
	"运动":  "YD",
}

// weatherCode maps a provider icon code to its legacy weather code.
func weatherCode(icon string) string {
	if code, ok := weatherCodeMap[icon]; ok {
		return code
	}
	return "0"
}

// windDirCode maps a wind direction to its legacy numeric code. The provider
// returns either a numeric string (passed through unchanged) or a Chinese
// compass term.
func windDirCode(dir string) string {
	if dir == "" {
		return "0"
	}
	if _, err := strconv.Atoi(dir); err == nil {
		return dir
	}
	if code, ok := windDirMap[dir]; ok {
		return code
	}
	return "0"
}

// indexCategoryVal maps index category text to the Val attribute, defaulting
// to "1" for categories outside the table.
func indexCategoryVal(category string) string {
	if val, ok := indexCategoryMap[category]; ok {
		return val
	}
	return "1"
}

// indexTypeName maps an index type name to its short code.
func indexTypeName(name string) string {
	if short, ok := indexTypeMap[name]; ok {
		return short
	}
	return name
}
