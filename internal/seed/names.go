package seed

var firstNames = []string{
	"Emma", "Liam", "Olivia", "Noah", "Ava", "Ethan", "Sophia", "Mason",
	"Isabella", "William", "Mia", "James", "Charlotte", "Benjamin", "Amelia",
	"Lucas", "Harper", "Henry", "Evelyn", "Alexander", "Abigail", "Daniel",
	"Emily", "Michael", "Elizabeth", "Owen", "Sofia", "Sebastian", "Avery", "Jack",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson",
	"Thomas", "Taylor", "Moore", "Jackson", "Martin", "Lee", "Perez", "Thompson",
	"White", "Harris", "Sanchez", "Clark", "Ramirez", "Lewis", "Robinson",
}

var roles = []string{"admin", "editor", "viewer"}

var adjectives = []string{
	"Premium", "Ultra", "Wireless", "Smart", "Compact", "Professional", "Ergonomic",
	"Portable", "Advanced", "Digital", "Classic", "Modern", "Elite", "Turbo", "Nano",
	"Dual", "Mini", "Pro", "Max", "Super",
}

var nouns = []string{
	"Keyboard", "Mouse", "Monitor", "Headphones", "Speaker", "Camera", "Microphone",
	"Tablet", "Charger", "Adapter", "Hub", "Cable", "Stand", "Light", "Webcam",
	"Router", "Drive", "Dock", "Controller", "Sensor",
}

var categories = []string{
	"electronics", "accessories", "audio", "computing", "peripherals",
	"networking", "storage", "gadgets", "office", "gaming",
}
