package diseases

import "strings"

// Disease is the descriptive record for one class of the tea leaf models
type Disease struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Key converts a model class name such as "red-rust" into the knowledge base key "red_rust"
func Key(className string) string {
	return strings.ReplaceAll(className, "-", "_")
}

// Lookup returns the disease for a model class name, or nil if the class is not a known disease
func Lookup(className string) *Disease {
	d, ok := table[Key(className)]
	if !ok {
		return nil
	}
	return &d
}

// All returns every disease, ordered by ID
func All() []Disease {
	all := make([]Disease, len(ordered))
	copy(all, ordered)
	return all
}

var ordered = []Disease{
	{
		ID:          1,
		Name:        "Algal Spot",
		Slug:        "algal_spot",
		Description: "Algal spot merupakan penyakit yang menyerang tanaman teh yang disebabkan oleh alga Cephaleuros virescens. Daun teh yang mengidap penyakit ini memiliki gejala berupa bercak yang menonjol, berbentuk bulat, berwarna oranye hingga cokelat tua yang tersebar di permukaan daun.",
	},
	{
		ID:          2,
		Name:        "Brown Blight",
		Slug:        "brown_blight",
		Description: "Brown blight adalah penyakit umum pada tanaman teh di Asia dan Pasifik. Ciri utamanya berupa bercak kuning kehijauan yang berubah jadi coklat tua, muncul dari tepi daun lalu menyebar ke dalam. Seiring waktu, tubuh buah hitam terbentuk dan bercak menyatu, menyebabkan daun muda mengering dan mati.",
	},
	{
		ID:          3,
		Name:        "Gray Blight",
		Slug:        "gray_blight",
		Description: "Infeksi yang menimbulkan bercak abu-abu pada daun, biasanya menyerang daun-daun yang sudah tua.",
	},
	{
		ID:          4,
		Name:        "Healthy",
		Slug:        "healthy",
		Description: "Daun teh dalam kondisi sehat tanpa tanda-tanda infeksi atau penyakit.",
	},
	{
		ID:          5,
		Name:        "Helopeltis",
		Slug:        "helopeltis",
		Description: "Helopeltis merupakan sebuah serangga hama yang menjadi ancaman bagi berbagai tanaman budidaya di Asia, termasuk tanaman teh. Hama ini merusak tanaman inangnya dengan cara menghisap cairan, yang menghasilkan munculnya bercak coklat atau tusukan kecil pada permukaan tanaman",
	},
	{
		ID:          6,
		Name:        "Leaf Rust",
		Slug:        "leaf_rust",
		Description: "Leaf rust merupakan salah satu gangguan pada tanaman teh yang ditandai dengan munculnya bercak putih pada permukaan daun. Penyakit ini sering dikaitkan dengan alga Cephaleuros sp.",
	},
	{
		ID:          7,
		Name:        "Red Spot",
		Slug:        "red_spot",
		Description: "Red spot merupakan istilah yang merujuk pada gejala bercak merah yang muncul pada daun teh. Red spot pada tanaman teh disebabkan oleh jamur Phoma theicola Petch",
	},
	{
		ID:          8,
		Name:        "Red Rust",
		Slug:        "red_rust",
		Description: "Penyakit red rust merupakan penyakit pada tanaman teh yang disebabkan oleh alga Cephaleuros parasiticus Karst. Penyakit ini ditandai dengan munculnya bercak-bercak berwarna merah atau oranye pada permukaan daun.",
	},
	{
		ID:          9,
		Name:        "Red Spider Infested",
		Slug:        "red_spider_infested",
		Description: "Red Spider Mite (Oligonychus coffeae Nietner) merupakan salah satu hama utama yang menyerang tanaman teh.",
	},
	{
		ID:          10,
		Name:        "White Spot",
		Slug:        "white_spot",
		Description: "White spot merupakan istilah visual yang merujuk pada munculnya bercak berwarna putih pada permukaan daun teh. White spot pada tanaman teh disebabkan oleh jamur Phyllosticta theicola",
	},
}

// keyed by slug
var table map[string]Disease

func init() {
	table = map[string]Disease{}
	for _, d := range ordered {
		table[d.Slug] = d
	}
}
