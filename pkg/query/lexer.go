package query

// Lexer tokenizes query text.
type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
	line    int
	col     int
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) currentPos() Position {
	return Position{Line: l.line, Column: l.col}
}

// Tokens lexes the whole input, ending with a TokenEOF or TokenIllegal token.
func (l *Lexer) Tokens() []Token {
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenIllegal {
			return toks
		}
	}
}

func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()
	pos := l.currentPos()

	single := func(tt TokenType) Token {
		tok := Token{Type: tt, Literal: string(l.ch), Pos: pos}
		l.readChar()
		return tok
	}

	switch l.ch {
	case 0:
		return Token{Type: TokenEOF, Pos: pos}
	case ',':
		return single(TokenComma)
	case '.':
		if isDigit(l.peekChar()) {
			return l.readNumber(pos)
		}
		return single(TokenDot)
	case '(':
		return single(TokenLParen)
	case ')':
		return single(TokenRParen)
	case '*':
		return single(TokenStar)
	case '-':
		return single(TokenMinus)
	case ';':
		return single(TokenSemicolon)
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
		}
		return single(TokenEq)
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenNe, Literal: "!=", Pos: pos}
		}
		return single(TokenIllegal)
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			l.readChar()
			return Token{Type: TokenLe, Literal: "<=", Pos: pos}
		case '>':
			l.readChar()
			l.readChar()
			return Token{Type: TokenNe, Literal: "<>", Pos: pos}
		}
		return single(TokenLt)
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenGe, Literal: ">=", Pos: pos}
		}
		return single(TokenGt)
	case '\'':
		return l.readString(pos)
	case '"', '`':
		return l.readQuotedIdent(pos)
	}

	if isLetter(l.ch) {
		start := l.pos
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		lit := l.input[start:l.pos]
		return Token{Type: lookupIdent(lit), Literal: lit, Pos: pos}
	}
	if isDigit(l.ch) {
		return l.readNumber(pos)
	}
	return single(TokenIllegal)
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '-' && l.peekChar() == '-':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	seenDot := false
	for isDigit(l.ch) || (l.ch == '.' && !seenDot) {
		if l.ch == '.' {
			seenDot = true
		}
		l.readChar()
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
}

// readString reads a single-quoted literal; a doubled quote is an escaped quote.
func (l *Lexer) readString(pos Position) Token {
	l.readChar()
	var buf []byte
	for {
		switch l.ch {
		case 0:
			return Token{Type: TokenIllegal, Literal: "unterminated string literal", Pos: pos}
		case '\'':
			if l.peekChar() == '\'' {
				buf = append(buf, '\'')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			return Token{Type: TokenString, Literal: string(buf), Pos: pos}
		}
		buf = append(buf, l.ch)
		l.readChar()
	}
}

func (l *Lexer) readQuotedIdent(pos Position) Token {
	quote := l.ch
	l.readChar()
	start := l.pos
	for l.ch != quote {
		if l.ch == 0 {
			return Token{Type: TokenIllegal, Literal: "unterminated quoted identifier", Pos: pos}
		}
		l.readChar()
	}
	lit := l.input[start:l.pos]
	l.readChar()
	return Token{Type: TokenQuotedIdent, Literal: lit, Pos: pos}
}

func isLetter(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_' || ch >= 0x80
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
