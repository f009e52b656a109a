package chain

// oracleABI covers the two methods of the single-slot oracle contract:
// sendMessage stores a prompt for the off-chain oracle and response returns
// the latest answer.
const oracleABI = `[
	{
		"inputs": [{"internalType": "string", "name": "message", "type": "string"}],
		"name": "sendMessage",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "response",
		"outputs": [{"internalType": "string", "name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	}
]`
